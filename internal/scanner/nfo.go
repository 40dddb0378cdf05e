package scanner

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// xmlHeader is written verbatim before the movie element.
const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// WriteSidecar renders the film document and staff roster as an XML
// sidecar named baseName plus sidecarExt inside dir. Scalar fields
// become child elements in document order; genres and countries
// explode into repeated singular elements; actors carry a zero-based
// display-order index reflecting roster order.
func WriteSidecar(doc *FilmDocument, roster *StaffRoster, dir, baseName, sidecarExt string) error {
	var buf bytes.Buffer
	buf.WriteString(xmlHeader)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	movie := xml.StartElement{Name: xml.Name{Local: "movie"}}
	if err := enc.EncodeToken(movie); err != nil {
		return fmt.Errorf("failed to render sidecar: %w", err)
	}

	for _, field := range doc.Scalars {
		if err := encodeTextElement(enc, field.Name, field.Value); err != nil {
			return fmt.Errorf("failed to render sidecar: %w", err)
		}
	}
	for _, genre := range doc.Genres {
		if err := encodeTextElement(enc, "genre", genre); err != nil {
			return fmt.Errorf("failed to render sidecar: %w", err)
		}
	}
	for _, country := range doc.Countries {
		if err := encodeTextElement(enc, "country", country); err != nil {
			return fmt.Errorf("failed to render sidecar: %w", err)
		}
	}

	for idx, actor := range roster.Actors {
		actorEl := xml.StartElement{Name: xml.Name{Local: "actor"}}
		if err := enc.EncodeToken(actorEl); err != nil {
			return fmt.Errorf("failed to render sidecar: %w", err)
		}
		if err := encodeTextElement(enc, "name", actor.Name); err != nil {
			return fmt.Errorf("failed to render sidecar: %w", err)
		}
		if err := encodeTextElement(enc, "role", actor.Role); err != nil {
			return fmt.Errorf("failed to render sidecar: %w", err)
		}
		if err := encodeTextElement(enc, "order", strconv.Itoa(idx)); err != nil {
			return fmt.Errorf("failed to render sidecar: %w", err)
		}
		if err := enc.EncodeToken(actorEl.End()); err != nil {
			return fmt.Errorf("failed to render sidecar: %w", err)
		}
	}

	for _, director := range roster.Directors {
		if err := encodeTextElement(enc, "director", director.Name); err != nil {
			return fmt.Errorf("failed to render sidecar: %w", err)
		}
	}

	if err := enc.EncodeToken(movie.End()); err != nil {
		return fmt.Errorf("failed to render sidecar: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return fmt.Errorf("failed to render sidecar: %w", err)
	}
	buf.WriteString("\n")

	path := filepath.Join(dir, baseName+sidecarExt)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write sidecar %s: %w", path, err)
	}
	return nil
}

func encodeTextElement(enc *xml.Encoder, name, value string) error {
	el := xml.StartElement{Name: xml.Name{Local: name}}
	return enc.EncodeElement(value, el)
}
