package upload

// Catalog tables.
const (
	TableFiles = "files"
	TableMedia = "media"
)

// KnownTables lists every table the migrations create.
var KnownTables = []string{TableFiles, TableMedia}

// TableSelector maps a folder to the catalog table that receives its rows.
type TableSelector struct {
	Default  string
	ByFolder map[string]string
}

// For returns the table for folder, falling back to Default.
func (t TableSelector) For(folder string) string {
	if table, ok := t.ByFolder[folder]; ok {
		return table
	}
	return t.Default
}

func isKnownTable(table string) bool {
	for _, known := range KnownTables {
		if table == known {
			return true
		}
	}
	return false
}
