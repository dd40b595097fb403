package region

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"codeberg.org/anaseto/gruid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/talgya/outpost/internal/grid"
)

// Document is the JSON form of a region.
type Document struct {
	ID      string        `json:"id"`
	Terrain []string      `json:"terrain"`
	POIs    []DocumentPOI `json:"pois"`
}

type DocumentPOI struct {
	Kind string `json:"kind"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

const schemaURL = "region.schema.json"

const schemaSource = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "terrain", "pois"],
  "additionalProperties": false,
  "properties": {
    "id": {"type": "string", "minLength": 1, "maxLength": 64},
    "terrain": {
      "type": "array",
      "minItems": 3,
      "maxItems": 256,
      "items": {"type": "string", "pattern": "^[.~#]{3,256}$"}
    },
    "pois": {
      "type": "array",
      "minItems": 2,
      "items": {
        "type": "object",
        "required": ["kind", "x", "y"],
        "additionalProperties": false,
        "properties": {
          "kind": {"enum": ["controller", "source", "mineral", "exit"]},
          "x": {"type": "integer", "minimum": 0},
          "y": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`

var schema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, strings.NewReader(schemaSource)); err != nil {
		panic(err)
	}
	return c.MustCompile(schemaURL)
}

// Decode reads, validates and builds a region from its JSON document.
func Decode(r io.Reader) (*Region, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read region: %w", err)
	}
	return DecodeBytes(raw)
}

// DecodeBytes is Decode over an in-memory document.
func DecodeBytes(raw []byte) (*Region, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("parse region: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("region schema: %v: %w", err, grid.ErrInvariant)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode region: %w", err)
	}
	return doc.Region()
}

// Region builds the region a document describes.
func (d *Document) Region() (*Region, error) {
	terrain, err := grid.ParseTerrain(d.Terrain)
	if err != nil {
		return nil, fmt.Errorf("region %s: %w", d.ID, err)
	}
	pois := make([]POI, 0, len(d.POIs))
	for _, p := range d.POIs {
		k, err := ParseKind(p.Kind)
		if err != nil {
			return nil, fmt.Errorf("region %s: %v: %w", d.ID, err, grid.ErrInvariant)
		}
		pois = append(pois, POI{Kind: k, At: gruid.Point{X: p.X, Y: p.Y}})
	}
	return New(d.ID, terrain, pois)
}

// Document returns the JSON form of r.
func (r *Region) Document() Document {
	doc := Document{ID: r.ID, Terrain: grid.FormatTerrain(r.Terrain)}
	for _, p := range r.POIs {
		doc.POIs = append(doc.POIs, DocumentPOI{Kind: p.Kind.String(), X: p.At.X, Y: p.At.Y})
	}
	return doc
}

// Encode writes r as indented JSON.
func (r *Region) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.Document())
}
