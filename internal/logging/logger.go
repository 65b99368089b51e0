package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает уровень из конфигурации. Неизвестные строки дают INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return TRACE
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// LogDir каталог для файловых логов. Пустая строка отключает запись в файлы.
var LogDir = "logs"

// Logger пишет сообщения компонента в консоль и, опционально, в файл
type Logger struct {
	component       string
	consoleLogger   *log.Logger
	fileLogger      *log.Logger
	file            *os.File
	minConsoleLevel LogLevel
	minFileLevel    LogLevel
	mu              sync.Mutex
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = &Logger{
		component:       "default",
		consoleLogger:   log.New(os.Stdout, "", log.LstdFlags),
		minConsoleLevel: INFO,
		minFileLevel:    DEBUG,
	}
)

// consoleLevel порог консоли для новых логгеров
var consoleLevel = INFO

// NewLogger создает логгер компонента. Файл открывается в LogDir, если он задан.
func NewLogger(component string) (*Logger, error) {
	defaultMu.RLock()
	minConsole := consoleLevel
	defaultMu.RUnlock()

	logger := &Logger{
		component:       component,
		consoleLogger:   log.New(os.Stdout, "", log.LstdFlags),
		minConsoleLevel: minConsole,
		minFileLevel:    DEBUG,
	}

	if LogDir == "" {
		return logger, nil
	}

	if err := os.MkdirAll(LogDir, 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории %s: %w", LogDir, err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join(LogDir, fmt.Sprintf("%s_%s.log", component, timestamp))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания файла логов: %w", err)
	}

	logger.file = file
	logger.fileLogger = log.New(file, "", log.LstdFlags)
	return logger, nil
}

// NewWriterLogger создает логгер поверх произвольного writer (для тестов и утилит)
func NewWriterLogger(component string, w io.Writer, level LogLevel) *Logger {
	return &Logger{
		component:       component,
		consoleLogger:   log.New(w, "", 0),
		minConsoleLevel: level,
		minFileLevel:    ERROR + 1,
	}
}

// SetLevels меняет пороги вывода
func (l *Logger) SetLevels(console, file LogLevel) {
	l.mu.Lock()
	l.minConsoleLevel = console
	l.minFileLevel = file
	l.mu.Unlock()
}

// Close закрывает файл логов
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.fileLogger = nil
	return err
}

// Trace логирует сообщение уровня TRACE
func (l *Logger) Trace(format string, args ...interface{}) { l.log(TRACE, format, args...) }

// Debug логирует сообщение уровня DEBUG
func (l *Logger) Debug(format string, args ...interface{}) { l.log(DEBUG, format, args...) }

// Info логирует сообщение уровня INFO
func (l *Logger) Info(format string, args ...interface{}) { l.log(INFO, format, args...) }

// Warn логирует сообщение уровня WARN
func (l *Logger) Warn(format string, args ...interface{}) { l.log(WARN, format, args...) }

// Error логирует сообщение уровня ERROR
func (l *Logger) Error(format string, args ...interface{}) { l.log(ERROR, format, args...) }

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	message := fmt.Sprintf("[%s] [%s] %s", level.String(), l.component, fmt.Sprintf(format, args...))

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileLogger != nil && level >= l.minFileLevel {
		l.fileLogger.Println(message)
	}
	if l.consoleLogger != nil && level >= l.minConsoleLevel {
		l.consoleLogger.Println(message)
	}
}

// InitDefaultLogger заменяет глобальный логгер логгером компонента
func InitDefaultLogger(component string) error {
	logger, err := NewLogger(component)
	if err != nil {
		return err
	}
	SetDefaultLogger(logger)
	return nil
}

// SetDefaultLogger устанавливает глобальный логгер
func SetDefaultLogger(logger *Logger) {
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
}

// SetDefaultLevels меняет порог консоли глобального логгера, уже созданных
// логгеров компонентов и всех будущих логгеров.
func SetDefaultLevels(console LogLevel) {
	defaultMu.Lock()
	consoleLevel = console
	logger := defaultLogger
	defaultMu.Unlock()

	logger.SetLevels(console, DEBUG)
	GetLoggerManager().setConsoleLevel(console)
}

// CloseDefaultLogger закрывает глобальный логгер
func CloseDefaultLogger() {
	defaultMu.RLock()
	logger := defaultLogger
	defaultMu.RUnlock()
	logger.Close()
}

func current() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// Trace логирует через глобальный логгер
func Trace(format string, args ...interface{}) { current().Trace(format, args...) }

// Debug логирует через глобальный логгер
func Debug(format string, args ...interface{}) { current().Debug(format, args...) }

// Info логирует через глобальный логгер
func Info(format string, args ...interface{}) { current().Info(format, args...) }

// Warn логирует через глобальный логгер
func Warn(format string, args ...interface{}) { current().Warn(format, args...) }

// Error логирует через глобальный логгер
func Error(format string, args ...interface{}) { current().Error(format, args...) }

// LogPositionChange логирует перемещение игрока
func LogPositionChange(userID uint64, from, to string) {
	Trace("User %d movement: %s -> %s", userID, from, to)
}
