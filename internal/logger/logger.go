package logger

import (
	"encoding/json"
	"log"
	"os"
)

func Init() {
	log.SetOutput(os.Stdout)
	log.SetFlags(0)
	log.Printf(`{"level":"INFO","msg":"logger initialized"}`)
}

func write(level string, msg string, fields map[string]any) {
	if len(fields) == 0 {
		log.Printf(`{"level":%q,"msg":%q}`, level, msg)
		return
	}

	encoded, err := json.Marshal(fields)
	if err != nil {
		log.Printf(`{"level":%q,"msg":%q,"fields_error":%q}`, level, msg, err.Error())
		return
	}

	log.Printf(`{"level":%q,"msg":%q,"fields":%s}`, level, msg, encoded)
}

func Info(msg string, fields map[string]any) {
	write("INFO", msg, fields)
}

func Warn(msg string, fields map[string]any) {
	write("WARN", msg, fields)
}

func Error(msg string, fields map[string]any) {
	write("ERROR", msg, fields)
}

func Fatal(msg string, fields map[string]any) {
	write("FATAL", msg, fields)
	os.Exit(1)
}
