package console

import (
	"strings"

	"github.com/chzyer/readline"
)

const (
	Yes = "y"
	No  = "n"
)

// YesOrNo asks question and defaults to yes on an empty answer.
func YesOrNo(question string) (string, error) {
	return Prompt(question, Yes, No)
}

// Prompt reads one line. With constraints the answer is one of them and the
// first constraint is the default.
func Prompt(question string, constraints ...string) (string, error) {
	if len(constraints) > 0 {
		question = question + " [" + strings.ToUpper(constraints[0]) + "/" + strings.Join(constraints[1:], "/") + "]:"
	}
	rl, err := readline.New(question)
	if err != nil {
		return "", err
	}
	defer func() { _ = rl.Close() }()
	response, err := rl.Readline()
	if err != nil || len(constraints) == 0 {
		return response, err
	}
	normalized := strings.ToLower(strings.TrimSpace(response))
	for _, c := range constraints {
		if normalized == c {
			return normalized, nil
		}
	}
	return constraints[0], nil
}
