package simulation

import "github.com/go-gl/mathgl/mgl64"

// CharacterFrame is the player pose portion of a frame snapshot. Position is
// the feet anchor the renderer places the avatar at.
type CharacterFrame struct {
	Position [3]float64 `json:"position"`
	Velocity [3]float64 `json:"velocity"`
	Yaw      float64    `json:"yaw"`
	Grounded bool       `json:"grounded"`
}

// CameraFrame is the camera pose portion of a frame snapshot.
type CameraFrame struct {
	Position [3]float64 `json:"position"`
	LookAt   [3]float64 `json:"look_at"`
	Yaw      float64    `json:"yaw"`
	Pitch    float64    `json:"pitch"`
	Distance float64    `json:"distance"`
	Aspect   float64    `json:"aspect"`
	Overview bool       `json:"overview"`
}

// Frame is one renderable snapshot of a session, streamed to the viewer and
// written to session captures. Target state rides along so a reconnecting
// viewer can rebuild its HUD without replaying events.
type Frame struct {
	Tick        uint64         `json:"tick"`
	SimMS       float64        `json:"sim_ms"`
	Character   CharacterFrame `json:"character"`
	Camera      CameraFrame    `json:"camera"`
	TargetID    string         `json:"target_id,omitempty"`
	HasNearby   bool           `json:"has_nearby"`
	Interacting bool           `json:"interacting"`
}

func vec3(v mgl64.Vec3) [3]float64 {
	return [3]float64{v.X(), v.Y(), v.Z()}
}
