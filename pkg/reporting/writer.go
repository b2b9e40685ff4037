// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reporting

import (
	_ "embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/NVIDIA/sos/pkg/manifest"
	"github.com/NVIDIA/sos/pkg/serializer"
)

// Report file names under sos_reports/.
const (
	TextFile = "sos.txt"
	JSONFile = "sos.json"
	HTMLFile = "sos.html"
)

//go:embed templates/sos.txt.tmpl
var textTemplate string

//go:embed templates/sos.html.tmpl
var htmlTemplate string

var (
	textTmpl = template.Must(template.New(TextFile).Funcs(template.FuncMap{
		"underline": func(s string) string { return strings.Repeat("-", len(s)) },
	}).Parse(textTemplate))
	htmlTmpl = htmltemplate.Must(htmltemplate.New(HTMLFile).Parse(htmlTemplate))
)

// Write renders all three reports into dir. Every format is attempted; the
// returned error joins the individual failures.
func Write(dir string, m *manifest.Manifest) error {
	r := Build(m)
	var errs []error
	if err := writeRendered(filepath.Join(dir, TextFile), func(w io.Writer) error { return RenderText(w, r) }); err != nil {
		errs = append(errs, err)
	}
	if err := serializer.WriteJSONFile(filepath.Join(dir, JSONFile), r, 0o644); err != nil {
		errs = append(errs, fmt.Errorf("failed to write %s: %w", JSONFile, err))
	}
	if err := writeRendered(filepath.Join(dir, HTMLFile), func(w io.Writer) error { return RenderHTML(w, r) }); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RenderText writes the plain text report.
func RenderText(w io.Writer, r *Report) error {
	return textTmpl.Execute(w, r)
}

// RenderHTML writes the HTML index with links into the archive.
func RenderHTML(w io.Writer, r *Report) error {
	return htmlTmpl.Execute(w, r)
}

func writeRendered(path string, render func(io.Writer) error) error {
	var buf strings.Builder
	if err := render(&buf); err != nil {
		return fmt.Errorf("failed to render %s: %w", filepath.Base(path), err)
	}
	if err := serializer.WriteFileAtomic(path, []byte(buf.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
