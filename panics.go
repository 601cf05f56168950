package windowagg

import (
	"fmt"
	"log"
	"runtime"
	"sort"
	"strings"

	"github.com/goliatone/go-errors"
)

type PanicLogger func(funcName string, err any, stack []byte, fields ...map[string]any)

// MakePanicHandler returns a deferrable recovery function. A recovered panic
// is logged and, when errp is not nil, turned into an error.
//
//	defer recoverTask("row-check", &err, map[string]any{"row": i})
func MakePanicHandler(logger PanicLogger) func(funcName string, errp *error, fields ...map[string]any) {
	if logger == nil {
		logger = DefaultPanicLogger
	}
	return func(funcName string, errp *error, fields ...map[string]any) {
		if rec := recover(); rec != nil {
			fullStack := make([]byte, 8096)
			n := runtime.Stack(fullStack, false)
			cleanedStack := cleanStackTrace(fullStack[:n])

			logger(funcName, rec, cleanedStack, fields...)

			if errp != nil {
				meta := map[string]any{"func": funcName}
				if len(fields) > 0 {
					for k, v := range fields[0] {
						meta[k] = v
					}
				}
				*errp = errors.New(fmt.Sprintf("recovered from panic in %s: %v", funcName, rec), errors.CategoryHandler).
					WithTextCode("TASK_PANIC").
					WithMetadata(meta)
			}
		}
	}
}

func DefaultPanicLogger(funcName string, err any, stack []byte, fields ...map[string]any) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[ERROR] recovered from panic in %s\n", funcName))
	sb.WriteString(fmt.Sprintf("Error: %v\n", err))
	sb.WriteString(fmt.Sprintf("Error Type: %T\n", err))

	if len(fields) > 0 && fields[0] != nil {
		sb.WriteString("Context:\n")

		keys := make([]string, 0, len(fields[0]))
		for k := range fields[0] {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, fields[0][k]))
		}
	}

	sb.WriteString("Stack Trace:\n")
	sb.Write(stack)

	log.Print(sb.String())
}

func cleanStackTrace(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")

	panicLineIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			panicLineIndex = i
			break
		}
	}

	// drop the panic() frame and its file reference
	if panicLineIndex >= 0 && panicLineIndex+2 < len(lines) {
		lines = lines[panicLineIndex+2:]
	}

	return []byte(strings.Join(lines, "\n"))
}
