package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/chazu/hlbc/pkg/bytecode"
	"github.com/pterm/pterm"
)

var (
	WarnColorFG  = pterm.FgYellow
	WarnStyleBG  = pterm.NewStyle(pterm.BgYellow, pterm.FgBlack)
	ErrorColorFG = pterm.FgRed
	ErrorStyleBG = pterm.NewStyle(pterm.BgRed, pterm.FgWhite)
)

// errorTag classifies an error for display. Decode failures and unresolved
// references are reported under their own tags.
func errorTag(err error) string {
	var de *bytecode.DecodeError
	var me *bytecode.MissingRefError
	var ee *bytecode.EncodeError
	switch {
	case errors.As(err, &de):
		return "Decode Error"
	case errors.As(err, &me), errors.Is(err, bytecode.ErrMissingRef):
		return "Missing Reference"
	case errors.As(err, &ee):
		return "Encode Error"
	case errors.Is(err, errUsage):
		return "Usage Error"
	}
	return "Error"
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, ErrorStyleBG.Sprint(" "+errorTag(err)+" ")+" "+ErrorColorFG.Sprint(err.Error()))
}

func printWarning(w io.Writer, tag, msg string) {
	fmt.Fprintln(w, WarnStyleBG.Sprint(" "+tag+" ")+" "+WarnColorFG.Sprint(msg))
}
