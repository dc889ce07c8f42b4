package config

// Persistent state keys (Registry)
const (
	KeyMap3D     = "map_3d"
	KeyTourShown = "tour_shown"
)
