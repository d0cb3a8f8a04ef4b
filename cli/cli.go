package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

const flagGroupAnnotation = "group"

func cliUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage: %s [flags] <reference.y4m> <distorted.y4m>\n\n",
		fs.Name())

	// Group flags by annotation, default to "General Options"
	helpGroupLists := make(map[string][]*pflag.Flag)
	var helpGroupOrder []string
	var longestFlagName, longestHelpMessage, longestDefaultVal int

	fs.VisitAll(func(f *pflag.Flag) {
		currentFlagAnnotations := f.Annotations[flagGroupAnnotation]
		flagGroup := "General Options"
		if len(currentFlagAnnotations) > 0 {
			flagGroup = currentFlagAnnotations[0]
		}

		if _, helpGroupExists := helpGroupLists[flagGroup]; !helpGroupExists {
			helpGroupOrder = append(helpGroupOrder, flagGroup)
		}
		helpGroupLists[flagGroup] = append(helpGroupLists[flagGroup], f)

		longestFlagName = max(longestFlagName, len(flagLabel(f))+1)
		longestHelpMessage = max(longestHelpMessage, len(f.Usage)+1)
		longestDefaultVal = max(longestDefaultVal, len(getDefaultString(f))+1)
	})

	for _, helpGroupName := range helpGroupOrder {
		fmt.Fprint(w, colorText(hiYellow, helpGroupName+":\n"))
		for _, f := range helpGroupLists[helpGroupName] {
			printFormattedFlag(w, f, longestFlagName, longestHelpMessage,
				longestDefaultVal)
		}
		fmt.Fprint(w, "\n")
	}
}

func printFormattedFlag(w io.Writer, f *pflag.Flag, maxFlagName, maxHelpText,
	maxDef int) {
	defaultValue := getDefaultString(f)
	defaultValuePadding := strings.Repeat(" ", maxDef-len(defaultValue))

	helpPadding := strings.Repeat(" ", maxHelpText-len(f.Usage))
	defaultTxt := colorText(darkPurple, fmt.Sprintf(
		"%sDefault: %s%s", helpPadding, defaultValuePadding, defaultValue))

	label := flagLabel(f)
	flagPadding := strings.Repeat(" ", maxFlagName-len(label))
	flagName := colorText(cyan, label+flagPadding)

	usageText := colorText(green, f.Usage)

	fmt.Fprintf(w, "\t%s %s   %s\n", flagName, usageText, defaultTxt)
}

// flagLabel is "-s, --name" or "--name".
func flagLabel(f *pflag.Flag) string {
	if f.Shorthand != "" {
		return "-" + f.Shorthand + ", --" + f.Name
	}
	return "--" + f.Name
}

// ANSI color codes

type color string

const (
	cyan       color = "\033[96m" // Bright cyan
	darkPurple color = "\033[38;5;55m"
	hiYellow   color = "\033[93m" // Bright yellow
	green      color = "\033[92m" // Bright green
)

const reset = "\033[0m"

func colorText(c color, text string) string { return string(c) + text + reset }

func getDefaultString(f *pflag.Flag) string {
	if f.DefValue == "" || f.DefValue == "[]" {
		return "\"\""
	}
	return f.DefValue
}

func addFlagToHelpGroup(fs *pflag.FlagSet, helpGroupName string,
	flagNames ...string) {
	for _, name := range flagNames {
		if err := fs.SetAnnotation(name, flagGroupAnnotation,
			[]string{helpGroupName}); err != nil {
			panic("unknown flag: " + name)
		}
	}
}
