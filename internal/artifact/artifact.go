// Package artifact handles exported report artifacts and their local persistence.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// fallbackName is used when a server-supplied name sanitizes to nothing.
const fallbackName = "export"

// Artifact is the final result of an export: raw content plus the filename
// derived from the server-reported display name and file extension.
type Artifact struct {
	Name    string
	Content []byte
}

// Filename derives the artifact filename as "<reportName>.<extension>".
// The extension is joined as reported; a leading dot is tolerated.
func Filename(reportName, extension string) string {
	return reportName + "." + strings.TrimPrefix(extension, ".")
}

// sanitize rewrites an untrusted filename so it cannot escape the output
// directory. Directory components and traversal segments are stripped, never
// rejected: the server controls report names and a weird name should not
// abort a save.
func sanitize(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(path.Clean("/" + name))
	name = strings.TrimSpace(name)
	if name == "/" || name == "." || name == ".." {
		return ""
	}
	return name
}

// Save writes the artifact into dir, choosing a unique filename when the
// sanitized name already exists ("name.ext", "name (1).ext", ...).
// It returns the path of the written file.
func Save(dir string, a *Artifact) (string, error) {
	name := sanitize(a.Name)
	if name == "" {
		name = fallbackName
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	target := filepath.Join(dir, name)
	for i := 1; ; i++ {
		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := f.Write(a.Content)
			cerr := f.Close()
			if werr != nil {
				return "", fmt.Errorf("writing %s: %w", target, werr)
			}
			if cerr != nil {
				return "", fmt.Errorf("closing %s: %w", target, cerr)
			}
			return target, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
		target = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
	}
}
