package models

// ShowType represents the category a show belongs to on the origin site
type ShowType string

const (
	ShowTypeMovie       ShowType = "movie"
	ShowTypeSeries      ShowType = "series"
	ShowTypeCartoon     ShowType = "cartoon"
	ShowTypeDocumentary ShowType = "documentary"
)

// AllShowTypes lists the categories a full catalog scan walks, in order
var AllShowTypes = []ShowType{ShowTypeMovie, ShowTypeSeries, ShowTypeCartoon, ShowTypeDocumentary}

// ScanType identifies a scan command for checkpointing
type ScanType string

const (
	ScanTypeFull     ScanType = "full"
	ScanTypeHistory  ScanType = "history"
	ScanTypeEpisodes ScanType = "episodes"
	ScanTypeGap      ScanType = "gap"
)

// HistoryMode selects which slice of the viewing history a scan compares
// its early-stop watermark against
type HistoryMode string

const (
	ModeEpisodes HistoryMode = "episodes"
	ModeMovies   HistoryMode = "movies"
)

// SessionKind names an independent site identity with its own cookie
// file and credentials
type SessionKind string

const (
	SessionMain SessionKind = "main"
	SessionAux  SessionKind = "aux"
)
