package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
)

// ControlDoc describes a single control the viewer exposes.  The structure is
// deliberately generic so that future clients can attach extra metadata
// without breaking the API.
type ControlDoc struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Shortcut    string `json:"shortcut,omitempty"`
}

// defaultControlDocs is the canonical description of the viewer controls.
// Hosting it on the server lets automated tests and tooling keep in-world
// help overlays in sync with what the simulation actually accepts.
var defaultControlDocs = []ControlDoc{
	{
		ID:          "move",
		Label:       "Move",
		Description: "Walk the character across the terrain; analog stick input blends with the keys.",
		Shortcut:    "W / A / S / D, Arrow Keys",
	},
	{
		ID:          "jump",
		Label:       "Jump",
		Description: "Hop over low obstacles while grounded.",
		Shortcut:    "Space",
	},
	{
		ID:          "interact",
		Label:       "Interact",
		Description: "Open the highlighted exhibit marker when the prompt is visible.",
		Shortcut:    "Keyboard E",
	},
	{
		ID:          "overview-toggle",
		Label:       "Overview",
		Description: "Switch between the shoulder camera and the overhead world overview.",
		Shortcut:    "Keyboard Tab",
	},
	{
		ID:          "camera-orbit",
		Label:       "Orbit Camera",
		Description: "Drag to swing the camera around the character.",
		Shortcut:    "Mouse Drag",
	},
	{
		ID:          "camera-zoom",
		Label:       "Zoom",
		Description: "Step the camera closer or further in fixed notches.",
		Shortcut:    "Mouse Wheel",
	},
}

var (
	wireSchemaOnce sync.Once
	wireSchemaJSON []byte
	wireSchemaErr  error
)

// buildWireSchema reflects the WebSocket message shapes into one JSON Schema
// document so client authors can validate their encoders against the server.
func buildWireSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}

	describe := func(value interface{}, title, description string) *jsonschema.Schema {
		schema := reflector.ReflectFromType(reflect.TypeOf(value))
		if schema == nil {
			return nil
		}
		schema.Version = ""
		schema.Title = title
		schema.Description = description
		return schema
	}

	welcome := describe(welcomeMessage{}, "Welcome",
		"First message on every connection; identifies the session and world.")
	frame := describe(frameMessage{}, "Frame",
		"Streamed character and camera snapshot produced by the simulation loop.")
	event := describe(eventMessage{}, "Event",
		"Ordered world event such as hover, interact or respawn.")
	intent := describe(intentPayload{}, "Intent",
		"Viewer input accepted on the WebSocket; all other payloads are dropped.")
	if welcome == nil || frame == nil || event == nil || intent == nil {
		return nil, errSchemaReflection
	}

	root := &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Wanderfield Wire Messages",
		Description: "Messages exchanged between the simulation server and a viewer.",
		OneOf:       []*jsonschema.Schema{welcome, frame, event, intent},
	}
	return root, nil
}

var errSchemaReflection = errors.New("wire message reflection failed")

// registerControlDocEndpoints registers the HTTP handlers used by the viewer
// to fetch control documentation and the wire schema.  Both are served as
// JSON so they can be reused by other tooling without extra parsing work.
func registerControlDocEndpoints(mux *http.ServeMux) {
	mux.HandleFunc("/api/controls", func(w http.ResponseWriter, r *http.Request) {
		// Always work on a copy so that concurrent requests cannot
		// mutate the global slice by accident.
		docs := append([]ControlDoc(nil), defaultControlDocs...)
		sort.SliceStable(docs, func(i, j int) bool {
			if docs[i].Label == docs[j].Label {
				return strings.Compare(docs[i].ID, docs[j].ID) < 0
			}
			return strings.Compare(docs[i].Label, docs[j].Label) < 0
		})

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(docs); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/api/schema", func(w http.ResponseWriter, r *http.Request) {
		wireSchemaOnce.Do(func() {
			schema, err := buildWireSchema()
			if err != nil {
				wireSchemaErr = err
				return
			}
			wireSchemaJSON, wireSchemaErr = json.MarshalIndent(schema, "", "  ")
		})
		if wireSchemaErr != nil {
			http.Error(w, wireSchemaErr.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(wireSchemaJSON)
	})
}
