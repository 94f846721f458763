// Package render produces the browsable HTML page over the discovery
// record. The page is derived output only, it loads the JSON record at
// view time and is regenerated at will.
package render

import (
	"fmt"
	"html/template"
	"io"
	"os"

	_ "embed"
)

//go:embed page.html
var pageSource string

var page = template.Must(template.New("page").Parse(pageSource))

type data struct {
	Title    string
	JSONFile string
}

// HTML writes the discovery page to w. jsonFile is the location of the
// discovery record relative to the page, usually just the file name.
func HTML(w io.Writer, jsonFile string) error {
	return page.Execute(w, data{
		Title:    "Found Websites",
		JSONFile: jsonFile,
	})
}

// WriteFile renders the page into path.
func WriteFile(path, jsonFile string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating page %s: %w", path, err)
	}
	if err := HTML(f, jsonFile); err != nil {
		_ = f.Close()
		return fmt.Errorf("rendering page %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing page %s: %w", path, err)
	}
	return nil
}
