package query

// DefaultSynonyms maps a term to related terms used for query expansion.
// Keys are matched after stemming, so "searching" expands like "search".
var DefaultSynonyms = map[string][]string{
	"search":      {"find", "discover", "locate"},
	"information": {"data", "knowledge", "details"},
	"analysis":    {"examination", "study", "evaluation"},
	"overview":    {"summary", "introduction"},
	"example":     {"sample", "demo", "illustration"},
	"error":       {"failure", "exception", "fault"},
	"image":       {"picture", "photo"},
	"video":       {"clip", "footage"},
	"guide":       {"tutorial", "walkthrough"},
	"compare":     {"versus", "difference"},
}

// ModalityCues lists words that hint a query wants a particular modality.
var ModalityCues = map[Modality][]string{
	ModalityImage: {"image", "picture", "photo", "visual", "diagram"},
	ModalityAudio: {"audio", "sound", "music", "voice", "podcast"},
	ModalityVideo: {"video", "movie", "clip", "footage"},
	ModalityCode:  {"code", "programming", "function", "algorithm", "snippet"},
}
