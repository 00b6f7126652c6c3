package utils

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

/**
 * Render a command line from templates
 * @param {string} command - Executable, may itself be a template
 * @param {[]string} args - Argument templates, each rendered independently
 * @param {interface{}} data - Template data
 * @returns {string} Rendered command
 * @returns {[]string} Rendered arguments, empty results are dropped
 * @description
 * - Missing keys are errors instead of rendering "<no value>"
 */
func GetCommandLine(command string, args []string, data interface{}) (string, []string, error) {
	cmd, err := render("command", command, data)
	if err != nil {
		return "", nil, err
	}

	processedArgs := make([]string, 0, len(args))
	for _, arg := range args {
		out, err := render("arg", arg, data)
		if err != nil {
			return "", nil, fmt.Errorf("arg '%s': %w", arg, err)
		}
		out = strings.TrimSpace(out)
		if out == "" {
			continue
		}
		processedArgs = append(processedArgs, out)
	}
	return cmd, processedArgs, nil
}

func render(name, text string, data interface{}) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", name, err)
	}
	return buf.String(), nil
}
