package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&MapRecord{},
	&Setting{},
}

// LastUsedMapKey is the settings key naming the most recently saved map.
const LastUsedMapKey = "last_used_map"

////////////////////////
// MAP MODELS
////////////////////////

// MapRecord is one saved map. The full session document lives in Document;
// the other columns are denormalized for listing without decoding it.
type MapRecord struct {
	gorm.Model
	Name         string         `json:"name" gorm:"size:255;uniqueIndex:idx_maps_name"`
	SessionID    string         `json:"sessionId" gorm:"size:36;index:idx_maps_session_id"`
	Document     datatypes.JSON `json:"document"`
	Track        geom.Geometry  `json:"-"` // LineString of the rover path, empty below two points
	Odometer     float64        `json:"odometer"`
	ScannedCells int            `json:"scannedCells"`
	Resources    int            `json:"resources"`
	Obstacles    int            `json:"obstacles"`
	Size         int64          `json:"size"`
}

func (*MapRecord) TableName() string {
	return "maps"
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// Setting is a small key/value row for store-wide state.
type Setting struct {
	Key       string    `json:"key" gorm:"primaryKey;size:64"`
	Value     string    `json:"value" gorm:"size:255"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (*Setting) TableName() string {
	return "settings"
}
