package log

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

type formatter struct {
	pattern string
	time    string
}

// Format renders entry with the configured pattern. Supported placeholders:
// %time, %level, %field, %msg, %caller, %func, %goroutine and %n.
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	output := f.pattern
	output = strings.Replace(output, "%time", entry.Time.Format(f.time), 1)
	output = strings.Replace(output, "%level", strings.ToUpper(entry.Level.String()), 1)
	output = strings.Replace(output, "%field", buildFields(entry), 1)
	output = strings.Replace(output, "%msg", entry.Message, 1)
	if strings.Contains(output, "%caller") {
		output = strings.Replace(output, "%caller", getCaller(entry), 1)
	}
	if strings.Contains(output, "%func") {
		output = strings.Replace(output, "%func", getFunc(entry), 1)
	}
	if strings.Contains(output, "%goroutine") {
		output = strings.Replace(output, "%goroutine", getGoroutineID(), 1)
	}
	output = strings.ReplaceAll(output, "%n", "\n")
	return []byte(output), nil
}

// getCaller returns "package/file.go:line" of the logging call site.
func getCaller(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "-"
	}
	file := entry.Caller.File
	if idx := strings.LastIndex(file, "/"); idx != -1 && idx+1 < len(file) {
		file = file[idx+1:]
	}
	pkg := ""
	if fn := entry.Caller.Function; fn != "" {
		if slash := strings.LastIndex(fn, "/"); slash != -1 {
			fn = fn[slash+1:]
		}
		if dot := strings.Index(fn, "."); dot != -1 {
			pkg = fn[:dot]
		}
	}
	return fmt.Sprintf("%s/%s:%d", pkg, file, entry.Caller.Line)
}

func getFunc(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "-"
	}
	funcName := entry.Caller.Function
	if idx := strings.LastIndex(funcName, "."); idx != -1 && idx+1 < len(funcName) {
		return funcName[idx+1:]
	}
	return funcName
}

// getGoroutineID parses the current goroutine id out of runtime.Stack.
func getGoroutineID() string {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	stack := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	if fields := strings.Fields(stack); len(fields) > 0 {
		return fields[0]
	}
	return "unknown"
}

// buildFields renders entry data as " k=v k=v", sorted by key.
func buildFields(entry *logrus.Entry) string {
	if len(entry.Data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteByte(' ')
		sb.WriteString(k)
		sb.WriteByte('=')
		switch v := entry.Data[k].(type) {
		case string:
			sb.WriteString(v)
		case error:
			sb.WriteString(v.Error())
		default:
			sb.WriteString(fmt.Sprint(v))
		}
	}
	return sb.String()
}
