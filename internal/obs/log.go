// Package obs holds the collabdoc service's observability plumbing:
// one shared JSON line logger, feeding both HTTP request logs and the
// audit trail, plus the Prometheus HTTP metrics.
package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide logger. Every subsystem (request
// logging, audit events, mail delivery warnings) writes through it so
// output stays one JSON object per line.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest marshals one HTTP log entry and emits it as a single line.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
