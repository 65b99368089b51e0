package level

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrDimensionExists возвращается при повторном создании измерения с тем же именем
	ErrDimensionExists = errors.New("измерение уже существует")
	// ErrDimensionNotFound возвращается, если измерения с таким именем нет
	ErrDimensionNotFound = errors.New("измерение не найдено")
)

// Level владеет набором измерений и управляет их временем жизни.
// Позиции хранят только адрес измерения и не продлевают его жизнь:
// после RemoveDimension старые ссылки остаются висячими.
type Level struct {
	name string

	mu         sync.RWMutex
	dimensions map[string]*Dimension
	spawn      Position
}

// NewLevel создает пустой уровень без измерений
func NewLevel(name string) *Level {
	return &Level{
		name:       name,
		dimensions: make(map[string]*Dimension),
	}
}

// DefaultLevel создает уровень с тремя стандартными измерениями.
// Точка появления: (0.5, 64, 0.5) в overworld.
func DefaultLevel(name string) *Level {
	l := NewLevel(name)
	overworld, _ := l.CreateDimension(OverworldName, Overworld)
	l.CreateDimension(NetherName, Nether)
	l.CreateDimension(TheEndName, TheEnd)
	l.spawn = NewPosition(overworld, 0.5, 64, 0.5)
	return l
}

// Name возвращает имя уровня
func (l *Level) Name() string { return l.name }

// CreateDimension создает измерение с границами по умолчанию для его типа
func (l *Level) CreateDimension(name string, kind DimensionType) (*Dimension, error) {
	return l.CreateDimensionWithBounds(name, kind, DefaultBounds(kind))
}

// CreateDimensionWithBounds создает измерение с явными границами
func (l *Level) CreateDimensionWithBounds(name string, kind DimensionType, bounds DimensionBounds) (*Dimension, error) {
	if name == "" {
		return nil, fmt.Errorf("пустое имя измерения")
	}
	if bounds.Height <= 0 {
		return nil, fmt.Errorf("недействительная высота измерения %s: %d", name, bounds.Height)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.dimensions[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDimensionExists, name)
	}

	dim := newDimension(name, kind, bounds)
	l.dimensions[name] = dim
	return dim, nil
}

// Dimension возвращает измерение по имени или nil, если его нет
func (l *Level) Dimension(name string) *Dimension {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dimensions[name]
}

// Dimensions возвращает все измерения, отсортированные по имени
func (l *Level) Dimensions() []*Dimension {
	l.mu.RLock()
	result := make([]*Dimension, 0, len(l.dimensions))
	for _, dim := range l.dimensions {
		result = append(result, dim)
	}
	l.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].name < result[j].name })
	return result
}

// RemoveDimension удаляет измерение из уровня.
// Позиции, всё ещё указывающие на него, не изменяются.
func (l *Level) RemoveDimension(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	dim, exists := l.dimensions[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrDimensionNotFound, name)
	}
	delete(l.dimensions, name)

	if l.spawn.Dimension() == dim {
		l.spawn = Position{}
	}
	return nil
}

// Owns сообщает, что измерение принадлежит этому уровню в данный момент
func (l *Level) Owns(dim *Dimension) bool {
	if dim == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dimensions[dim.name] == dim
}

// Spawn возвращает точку появления. Без измерения, если она не задана.
func (l *Level) Spawn() Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.spawn
}

// SetSpawn задаёт точку появления. Измерение должно принадлежать уровню.
func (l *Level) SetSpawn(pos Position) error {
	if !l.Owns(pos.Dimension()) {
		return fmt.Errorf("%w: точка появления вне уровня %s", ErrDimensionNotFound, l.name)
	}
	l.mu.Lock()
	l.spawn = pos
	l.mu.Unlock()
	return nil
}
