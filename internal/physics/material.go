package physics

import "strings"

// Material names recognised by the default contact table.
const (
	MaterialDefault  = "default"
	MaterialPlayer   = "player"
	MaterialSlippery = "slippery"
	MaterialBouncy   = "bouncy"
)

// ContactProperties captures the friction and restitution applied to a body pair.
type ContactProperties struct {
	Friction    float64
	Restitution float64
}

// MaterialTable resolves contact properties for unordered material pairs.
type MaterialTable struct {
	pairs    map[string]ContactProperties
	fallback ContactProperties
}

// NewMaterialTable builds the standard contact table used by the world.
func NewMaterialTable() *MaterialTable {
	table := &MaterialTable{
		pairs:    make(map[string]ContactProperties, 4),
		fallback: ContactProperties{Friction: 0.4, Restitution: 0.1},
	}
	//1.- Register the canonical pairs; these are tuned values, not derived ones.
	table.Register(MaterialDefault, MaterialDefault, ContactProperties{Friction: 0.4, Restitution: 0.1})
	table.Register(MaterialPlayer, MaterialDefault, ContactProperties{Friction: 0.3, Restitution: 0.0})
	table.Register(MaterialPlayer, MaterialSlippery, ContactProperties{Friction: 0.02, Restitution: 0.0})
	table.Register(MaterialPlayer, MaterialBouncy, ContactProperties{Friction: 0.3, Restitution: 0.8})
	return table
}

// Register stores contact properties for the unordered pair of material names.
func (t *MaterialTable) Register(a, b string, props ContactProperties) {
	if t == nil {
		return
	}
	t.pairs[pairKey(a, b)] = props
}

// Lookup resolves the contact properties for two material names, falling back
// to the default pair when the combination was never registered.
func (t *MaterialTable) Lookup(a, b string) ContactProperties {
	if t == nil {
		return ContactProperties{Friction: 0.4, Restitution: 0.1}
	}
	if props, ok := t.pairs[pairKey(a, b)]; ok {
		return props
	}
	return t.fallback
}

func pairKey(a, b string) string {
	a = normaliseMaterial(a)
	b = normaliseMaterial(b)
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func normaliseMaterial(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return MaterialDefault
	}
	return name
}
