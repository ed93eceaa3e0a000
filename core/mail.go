package core

import (
	"bytes"
	htmltmpl "html/template"
	"net/mail"
	"path"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"

	appfs "github.com/trezcool/kikundi/fs"
)

var (
	templates tmplCache
	tmplErr   error
	tmplInit  sync.Once

	templatesDir = "templates/email"
)

type (
	tmplCacheEntry struct {
		text *texttmpl.Template
		html *htmltmpl.Template
	}
	tmplCache map[string]tmplCacheEntry // {name: entry}

	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// Render fills TextContent & HTMLContent from BodyStr or the embedded templates.
func (m *EmailMessage) Render() error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}

	tmplInit.Do(parseTemplates) // only parse once
	if tmplErr != nil {
		return tmplErr
	}
	entry, ok := templates[m.TemplateName]
	if !ok {
		return errors.Errorf("unknown email template %q", m.TemplateName)
	}

	if entry.text != nil && m.BodyStr == "" {
		var buff bytes.Buffer
		if err := entry.text.Execute(&buff, m.TemplateData); err != nil {
			return errors.Wrap(err, "rendering text template")
		}
		m.TextContent = buff.String()
	}
	if entry.html != nil {
		var buff bytes.Buffer
		if err := entry.html.Execute(&buff, m.TemplateData); err != nil {
			return errors.Wrap(err, "rendering html template")
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

func parseTemplates() {
	templates = make(tmplCache)

	entries, err := appfs.FS.ReadDir(templatesDir)
	if err != nil {
		tmplErr = errors.Wrap(err, "reading email templates")
		return
	}
	for _, e := range entries {
		fname := e.Name()
		ext := path.Ext(fname)
		if e.IsDir() || fname[0] == '_' || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := fname[:len(fname)-len(ext)]
		entry := templates[name]
		fp := path.Join(templatesDir, fname)

		if ext == ".txt" {
			entry.text, err = texttmpl.New(fname).Option("missingkey=error").ParseFS(appfs.FS, fp)
		} else {
			entry.html, err = htmltmpl.New(fname).Option("missingkey=error").ParseFS(appfs.FS, fp)
		}
		if err != nil {
			tmplErr = errors.Wrapf(err, "parsing %s", fp)
			return
		}
		templates[name] = entry
	}
}
