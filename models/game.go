package models

// Game is a supported title. SupportsMapCodes gates whether map-code PMs
// are resolved and sent on battle entry.
type Game struct {
	ID               int    `json:"id" db:"id"`
	Name             string `json:"name" db:"name"`
	SupportsMapCodes bool   `json:"supports_map_codes" db:"supports_map_codes"`
}

// GameMode groups maps and fixes the team size. Custom (workshop) modes
// are excluded from bracket map selection.
type GameMode struct {
	ID       int    `json:"id" db:"id"`
	GameID   int    `json:"game_id" db:"game_id"`
	Name     string `json:"name" db:"name"`
	TeamSize int    `json:"team_size" db:"team_size"`
	IsCustom bool   `json:"is_custom" db:"is_custom"`
}

type GameMap struct {
	ID     int    `json:"id" db:"id"`
	ModeID int    `json:"mode_id" db:"mode_id"`
	Name   string `json:"name" db:"name"`
}
