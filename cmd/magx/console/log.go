package console

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

const PictoFinish = "🏁"
const PictoPin = "📌"

var writer io.Writer
var errWriter io.Writer

func init() {
	writer = os.Stdout
	errWriter = os.Stderr
}

func SetOutput(w, errw io.Writer) {
	writer = w
	errWriter = errw
}

func Warnf(msg string, args ...interface{}) {
	_, _ = fmt.Fprintf(errWriter, "%s: %s\n", Yellow("WARN"), fmt.Sprintf(msg, args...))
}

func Infof(msg string, args ...interface{}) {
	_, _ = fmt.Fprintf(writer, "%s %s\n", White("..."), fmt.Sprintf(msg, args...))
}

func PInfof(picto, msg string, args ...interface{}) {
	_, _ = fmt.Fprintf(writer, "%s %s\n", picto, fmt.Sprintf(msg, args...))
}

func Print(msg string) {
	_, _ = fmt.Fprintln(writer, msg)
}

func Printf(msg string, args ...interface{}) {
	_, _ = fmt.Fprintf(writer, msg, args...)
}

// Dump prints data as a hex dump with offsets starting at base.
func Dump(base byte, data []byte) {
	if len(data) == 0 {
		Print(White("(no data)"))
		return
	}
	for off := 0; off < len(data); off += 16 {
		end := min(off+16, len(data))
		row := strings.ToUpper(hex.EncodeToString(data[off:end]))
		var cells strings.Builder
		for i := 0; i < len(row); i += 2 {
			if i > 0 {
				cells.WriteByte(' ')
			}
			cells.WriteString(row[i : i+2])
		}
		Printf("%s  %s\n", Cyan(fmt.Sprintf("%02X", int(base)+off)), cells.String())
	}
}
