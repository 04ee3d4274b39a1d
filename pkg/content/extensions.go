package content

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sonemaro/sifter/pkg/pathclass"
)

// Class groups extensions by how their content should be treated.
type Class int

const (
	ClassOther Class = iota
	ClassText
	ClassLog
	ClassDatabase
	ClassDocument
	ClassMail
	ClassBinary
	ClassArchive
	ClassMedia
)

var extensionClasses = map[string]Class{}

func register(class Class, exts ...string) {
	for _, e := range exts {
		extensionClasses[e] = class
	}
}

func init() {
	register(ClassText,
		"txt", "md", "markdown", "csv", "tsv", "json", "xml", "ini", "cfg", "conf",
		"yaml", "yml", "toml", "properties", "rtf", "html", "htm", "tex",
		"go", "py", "js", "ts", "java", "c", "h", "cpp", "hpp", "cs", "rb", "rs",
		"php", "sh", "bat", "ps1", "sql", "css")
	register(ClassLog, "log", "out", "trace", "err")
	register(ClassDatabase, "db", "sqlite", "sqlite3", "mdb", "accdb", "dbf", "frm", "ibd")
	register(ClassDocument, "pdf", "docx", "xlsx", "xlsm", "pptx", "odt", "ods", "odp")
	register(ClassMail, "eml", "mbox", "msg")
	register(ClassBinary,
		"exe", "dll", "so", "dylib", "bin", "iso", "img", "dmg", "msi", "sys",
		"vmdk", "vhd", "vhdx", "qcow2", "o", "a", "class", "pyc")
	register(ClassArchive, "zip", "rar", "7z", "tar", "gz", "tgz", "bz2", "xz", "zst", "cab", "jar")
	register(ClassMedia,
		"mp4", "mkv", "avi", "mov", "wmv", "flv", "webm", "mp3", "wav", "flac",
		"aac", "ogg", "m4a", "jpg", "jpeg", "png", "gif", "bmp", "tiff", "heic", "psd")
}

// Ext returns the lower-cased extension of name without the dot.
func Ext(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// ClassOf classifies an extension as returned by Ext.
func ClassOf(ext string) Class {
	return extensionClasses[strings.ToLower(ext)]
}

// IsContainer reports whether files with ext may embed other documents
// that need extra processing time.
func IsContainer(ext string) bool {
	return ClassOf(ext) == ClassMail
}

var systemFiles = map[string]bool{
	"pagefile.sys":      true,
	"hiberfil.sys":      true,
	"swapfile.sys":      true,
	"dumpstack.log.tmp": true,
	"swapfile":          true,
	"ntuser.dat":        true,
	"usrclass.dat":      true,
	"thumbs.db":         true,
	".ds_store":         true,
}

// IsSystemFile reports whether name is an OS-managed file never worth reading.
func IsSystemFile(name string) bool {
	return systemFiles[strings.ToLower(name)]
}

// Level selects how broadly content matching applies.
type Level int

const (
	LevelBasic Level = iota
	LevelAdvanced
	LevelDeep
)

func (l Level) String() string {
	switch l {
	case LevelBasic:
		return "basic"
	case LevelAdvanced:
		return "advanced"
	case LevelDeep:
		return "deep"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel accepts basic, advanced or deep.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic", "":
		return LevelBasic, nil
	case "advanced":
		return LevelAdvanced, nil
	case "deep":
		return LevelDeep, nil
	default:
		return LevelBasic, fmt.Errorf("unknown search level: %q", s)
	}
}

// Wildcard in an allow-list admits every extension that is not binary,
// archive or media.
const Wildcard = "*"

// DefaultExtensionLists returns the built-in allow-list per level.
func DefaultExtensionLists() map[Level][]string {
	basic := []string{"txt", "md", "csv", "log", "json", "xml", "ini", "cfg", "conf", "yaml", "yml", "html", "htm", "rtf"}
	advanced := append(append([]string{}, basic...),
		"pdf", "docx", "xlsx", "xlsm", "pptx", "odt", "eml", "mbox", "sql", "tsv", "toml",
		"properties", "go", "py", "js", "ts", "java", "c", "h", "cpp", "cs", "sh", "bat", "ps1")
	return map[Level][]string{
		LevelBasic:    basic,
		LevelAdvanced: advanced,
		LevelDeep:     {Wildcard},
	}
}

// AllowList answers whether a level may read a given extension.
type AllowList struct {
	sets map[Level]map[string]bool
}

// NewAllowList builds an AllowList from per-level extension lists.
// Extensions are accepted with or without a leading dot.
func NewAllowList(lists map[Level][]string) AllowList {
	a := AllowList{sets: make(map[Level]map[string]bool, len(lists))}
	for level, exts := range lists {
		set := make(map[string]bool, len(exts))
		for _, e := range exts {
			set[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))] = true
		}
		a.sets[level] = set
	}
	return a
}

// Allows reports whether content at level may be read for ext.
func (a AllowList) Allows(level Level, ext string) bool {
	set, ok := a.sets[level]
	if !ok {
		return false
	}
	if set[ext] {
		return true
	}
	if set[Wildcard] {
		switch ClassOf(ext) {
		case ClassBinary, ClassArchive, ClassMedia:
			return false
		}
		return true
	}
	return false
}

// Action is what happens to a Gigantic file.
type Action int

const (
	ActionSkip Action = iota
	ActionPartial
	ActionConfirm
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionPartial:
		return "partial"
	case ActionConfirm:
		return "confirm"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Plan is the decision for one Gigantic file.
type Plan struct {
	Action  Action
	Reason  string
	Profile PartialProfile
}

// GiganticPolicy holds the absolute skip cut-offs.
type GiganticPolicy struct {
	BinaryCutoff  int64
	ArchiveCutoff int64
	MediaCutoff   int64
}

// DefaultGiganticPolicy skips binaries above 5GB, archives above 4GB and
// media above 3GB.
func DefaultGiganticPolicy() GiganticPolicy {
	return GiganticPolicy{
		BinaryCutoff:  5 * pathclass.GB,
		ArchiveCutoff: 4 * pathclass.GB,
		MediaCutoff:   3 * pathclass.GB,
	}
}

// Plan decides how a Gigantic file with ext and size is handled.
func (g GiganticPolicy) Plan(ext string, size int64) Plan {
	class := ClassOf(ext)
	switch {
	case class == ClassBinary && size > g.BinaryCutoff:
		return Plan{Action: ActionSkip, Reason: "binary file above " + pathclass.FormatSize(g.BinaryCutoff)}
	case class == ClassArchive && size > g.ArchiveCutoff:
		return Plan{Action: ActionSkip, Reason: "archive above " + pathclass.FormatSize(g.ArchiveCutoff) + "; extract it manually to search its contents"}
	case class == ClassMedia && size > g.MediaCutoff:
		return Plan{Action: ActionSkip, Reason: "media file above " + pathclass.FormatSize(g.MediaCutoff)}
	case class == ClassDatabase || class == ClassLog || class == ClassText:
		return Plan{Action: ActionPartial, Profile: PartialProfileFor(ext)}
	default:
		return Plan{Action: ActionConfirm, Profile: PartialProfileFor(ext)}
	}
}
