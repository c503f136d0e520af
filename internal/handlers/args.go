package handlers

import (
	"strconv"
	"strings"

	"github.com/mroshb/shop_economy/pkg/errors"
)

func usage(text string) error {
	return errors.New(errors.ErrCodeValidation, "usage: "+text)
}

// argAt returns the i-th argument or a usage error.
func argAt(args []string, i int, usageText string) (string, error) {
	if i >= len(args) {
		return "", usage(usageText)
	}
	return args[i], nil
}

func parseInt(name, raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Newf(errors.ErrCodeValidation, "%s must be a whole number, got %q", name, raw)
	}
	return n, nil
}

// optionalInt parses args[i] when present and returns def otherwise.
func optionalInt(args []string, i int, name string, def int64) (int64, error) {
	if i >= len(args) {
		return def, nil
	}
	return parseInt(name, args[i])
}

// rest joins the arguments from i on, for free text like reasons.
func rest(args []string, i int) string {
	if i >= len(args) {
		return ""
	}
	return strings.Join(args[i:], " ")
}

func parseSwitch(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, errors.Newf(errors.ErrCodeValidation, "expected on or off, got %q", raw)
}
