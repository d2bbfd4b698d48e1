package console

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Exit formats msg and makes the cli terminate with code.
func Exit(code int, msg string, args ...any) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}
