package scanner

import (
	"strconv"

	"github.com/pbelyaev/kinoscribe/internal/catalog"
)

// filmFieldTable maps sidecar field names to raw catalog record
// keys, in sidecar output order. poster and cover are diverted into
// the artwork URL set instead of the document.
var filmFieldTable = []struct {
	out string
	src string
}{
	{"title", "nameRu"},
	{"originaltitle", "nameOriginal"},
	{"year", "year"},
	{"plot", "description"},
	{"runtime", "filmLength"},
	{"rating", "ratingKinopoisk"},
	{"votes", "ratingKinopoiskVoteCount"},
	{"mpaa", "ratingMpaa"},
	{"certification", "ratingMpaa"},
	{"genres", "genres"},
	{"countries", "countries"},
	{"kinopoisk_id", "kinopoiskId"},
	{"poster", "posterUrl"},
	{"cover", "coverUrl"},
}

// ScalarField is one present scalar entry of a film document.
type ScalarField struct {
	Name  string
	Value string
}

// FilmDocument is the normalized record written to the sidecar.
// Scalars holds only the fields present in the source, in output
// order; absent fields are listed in EmptyFields by the normalizer
// instead of being defaulted.
type FilmDocument struct {
	Scalars   []ScalarField
	Genres    []string
	Countries []string
}

// Get returns a scalar field value by name.
func (d *FilmDocument) Get(name string) (string, bool) {
	for _, f := range d.Scalars {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// ImageURLs are the artwork download targets extracted from a film
// record.
type ImageURLs struct {
	Poster string
	Cover  string
}

// RosterPerson is one cast or crew entry of the sidecar.
type RosterPerson struct {
	Name string
	Role string
}

// StaffRoster holds the normalized cast and crew in response order.
type StaffRoster struct {
	Actors    []RosterPerson
	Directors []RosterPerson
}

// NormalizeFilm maps a raw catalog record into a film document using
// the fixed field table. Absent or falsy source values are omitted
// from the document and their output names collected into the
// returned empty-field list. runtime is converted source unit x 60;
// a non-numeric runtime counts as empty, never as an error.
func NormalizeFilm(raw map[string]interface{}) (*FilmDocument, ImageURLs, []string) {
	doc := &FilmDocument{}
	var images ImageURLs
	var emptyFields []string

	for _, field := range filmFieldTable {
		value, present := raw[field.src]
		if !present || isFalsy(value) {
			emptyFields = append(emptyFields, field.out)
			continue
		}
		switch field.out {
		case "runtime":
			if n, ok := asInt(value); ok {
				doc.Scalars = append(doc.Scalars, ScalarField{Name: "runtime", Value: strconv.Itoa(n * 60)})
			} else {
				emptyFields = append(emptyFields, field.out)
			}
		case "poster":
			images.Poster = asString(value)
		case "cover":
			images.Cover = asString(value)
		case "genres":
			doc.Genres = extractNamedList(value, "genre")
		case "countries":
			doc.Countries = extractNamedList(value, "country")
		default:
			doc.Scalars = append(doc.Scalars, ScalarField{Name: field.out, Value: asString(value)})
		}
	}

	return doc, images, emptyFields
}

// NormalizeStaff turns the filtered staff listing into a sidecar
// roster plus a photo-URL map keyed by display name. A person with
// neither a primary nor a secondary name is dropped from the roster
// silently; people without a photo are collected into the returned
// empty-photo list.
func NormalizeStaff(staff *catalog.Staff) (*StaffRoster, map[string]string, []string) {
	roster := &StaffRoster{}
	photos := make(map[string]string)
	var emptyPhotos []string

	normalize := func(persons []catalog.Person, out *[]RosterPerson) {
		for _, p := range persons {
			name := p.NameRu
			if name == "" {
				name = p.NameEn
			}
			if name != "" {
				*out = append(*out, RosterPerson{Name: name, Role: p.Description})
			}
			if p.PosterURL != "" {
				if name != "" {
					photos[name] = p.PosterURL
				}
			} else {
				emptyPhotos = append(emptyPhotos, name)
			}
		}
	}

	normalize(staff.Actors, &roster.Actors)
	normalize(staff.Directors, &roster.Directors)

	return roster, photos, emptyPhotos
}

// isFalsy mirrors the absent-or-empty contract of the field table:
// nil, empty string, zero number and empty list all count as absent.
func isFalsy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case float64:
		return v == 0
	case int:
		return v == 0
	case bool:
		return !v
	case []interface{}:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	}
	return false
}

// asString renders a raw JSON value for the sidecar. Numbers drop
// their trailing fraction when integral.
func asString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func asInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// extractNamedList unpacks the catalog's [{"genre": "..."}, ...]
// wrapper lists into plain string slices.
func extractNamedList(value interface{}, key string) []string {
	items, ok := value.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if name, ok := entry[key].(string); ok && name != "" {
			out = append(out, name)
		}
	}
	return out
}
