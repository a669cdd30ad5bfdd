// Package toolname derives MCP tool names from peer command identifiers.
//
// Clients limit the length of "<server>: <tool>" to MaxCombinedLength
// characters. Command identifiers are shortened by stripping the common
// prefix, applying an ordered abbreviation table and replacing dots with
// underscores. Names still over budget are truncated behind TruncationMarker.
package toolname

import (
	"strings"
	"unicode/utf8"
)

const (
	// ServerName is the name the MCP server announces.
	ServerName = "mcp-1c-platform-tools"
	// MaxCombinedLength bounds len(server) + len(Separator) + len(tool).
	MaxCombinedLength = 60
	// CommandPrefix is stripped from command identifiers.
	CommandPrefix = "1c-platform-tools."
	// TruncationMarker starts every truncated tool name.
	TruncationMarker = "1cpt_"
	// Separator joins server and tool names in client UIs.
	Separator = ": "
)

// Abbreviation replaces every occurrence of Long with Short.
type Abbreviation struct {
	Long  string
	Short string
}

// DefaultAbbreviations is applied in order. Longer phrases come first so that
// their parts are not shortened on their own beforehand.
var DefaultAbbreviations = []Abbreviation{
	{"initializeProjectStructure", "initProjStruct"},
	{"loadIncrementFromSrc", "loadIncFromSrc"},
	{"loadFromFilesByList", "loadFromFiles"},
	{"dumpIncrementToSrc", "dumpIncToSrc"},
	{"blockExternalResources", "blockExtRes"},
	{"decompileConfiguration", "decompileCfg"},
	{"decompileExtension", "decompileExt"},
	{"decompileProcessor", "decompileProc"},
	{"fromEditor", "FromEd"},
	{"initialize", "init"},
	{"Configuration", "Cfg"},
	{"Extension", "Ext"},
	{"Processor", "Proc"},
	{"Project", "Proj"},
	{"Structure", "Struct"},
	{"dependencies", "deps"},
	{"External", "Ext"},
	{"Resources", "Res"},
	{"Database", "Db"},
	{"Increment", "Inc"},
	{"Artifacts", "Art"},
}

// Compressor turns command identifiers into tool names that fit the
// combined length budget for its server name.
type Compressor struct {
	serverName    string
	prefix        string
	abbreviations []Abbreviation
}

// NewCompressor creates a compressor. The abbreviation slice is copied.
func NewCompressor(serverName, prefix string, abbreviations []Abbreviation) *Compressor {
	abbrevs := make([]Abbreviation, len(abbreviations))
	copy(abbrevs, abbreviations)
	return &Compressor{
		serverName:    serverName,
		prefix:        prefix,
		abbreviations: abbrevs,
	}
}

var defaultCompressor = NewCompressor(ServerName, CommandPrefix, DefaultAbbreviations)

// Default returns the compressor for ServerName and DefaultAbbreviations.
func Default() *Compressor {
	return defaultCompressor
}

// ServerName returns the server name the budget is computed for.
func (c *Compressor) ServerName() string {
	return c.serverName
}

// MaxToolNameLength is the longest tool name that fits next to the server
// name. It is negative when the server name alone exceeds the budget.
func (c *Compressor) MaxToolNameLength() int {
	return MaxCombinedLength - len(c.serverName) - len(Separator)
}

// CombinedLength returns the length of "<server>: <tool>".
func (c *Compressor) CombinedLength(tool string) int {
	return len(c.serverName) + len(Separator) + len(tool)
}

// Compress maps a command identifier to a tool name. The result is
// deterministic and always fits the budget. Lengths are counted in bytes,
// which is never less than the character count.
func (c *Compressor) Compress(commandID string) string {
	name := strings.TrimPrefix(commandID, c.prefix)
	for _, a := range c.abbreviations {
		if a.Long == "" {
			continue
		}
		name = strings.ReplaceAll(name, a.Long, a.Short)
	}
	name = strings.ReplaceAll(name, ".", "_")

	limit := c.MaxToolNameLength()
	if len(name) <= limit {
		return name
	}
	if limit < len(TruncationMarker) {
		return truncate(TruncationMarker, limit)
	}
	return TruncationMarker + truncate(name, limit-len(TruncationMarker))
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// FromCommandID compresses commandID with the default compressor.
func FromCommandID(commandID string) string {
	return defaultCompressor.Compress(commandID)
}

// CombinedLength returns the combined length of tool next to ServerName.
func CombinedLength(tool string) int {
	return defaultCompressor.CombinedLength(tool)
}

// MaxToolNameLength is the tool name budget next to ServerName.
func MaxToolNameLength() int {
	return defaultCompressor.MaxToolNameLength()
}
