package globalconst

// This package centralizes all constants and "magic strings" used throughout the application
// to improve maintainability and reduce errors from typos.

const (
	// =========================================================================
	// Document Fields
	// =========================================================================

	// ID is the field for the document's unique identifier.
	ID = "_id"
	// CreatedAt is the field for the document's creation timestamp.
	CreatedAt = "_createdAt"
	// UpdatedAt is the field for the last update timestamp.
	UpdatedAt = "_updatedAt"
	// DeletedAt marks a document as logically deleted on soft-delete tables.
	DeletedAt = "_deletedAt"
	// ReservedPrefix starts every metadata field name.
	ReservedPrefix = "_"

	// =========================================================================
	// Aggregation Stages
	// =========================================================================

	StageMatch     = "$match"
	StageGroup     = "$group"
	StageSort      = "$sort"
	StageProject   = "$project"
	StageSkip      = "$skip"
	StageLimit     = "$limit"
	StageUnwind    = "$unwind"
	StageLookup    = "$lookup"
	StageAddFields = "$addFields"

	// --- Accumulators ---
	AccSum      = "$sum"
	AccAvg      = "$avg"
	AccMin      = "$min"
	AccMax      = "$max"
	AccPush     = "$push"
	AccAddToSet = "$addToSet"
	AccFirst    = "$first"
	AccLast     = "$last"
	AccCount    = "$count"

	// --- Expressions ---
	ExprMultiply = "$multiply"
	ExprConcat   = "$concat"
	ExprToUpper  = "$toUpper"
	ExprToLower  = "$toLower"
	ExprAdd      = "$add"
	ExprSubtract = "$subtract"

	// TimestampFormat renders every stored time. The fraction is fixed width
	// so stamps order correctly as plain strings.
	TimestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

	// FieldRefPrefix marks a string as a field reference inside expressions.
	FieldRefPrefix = "$"

	// --- Sort Directions ---
	SortAsc  = 1
	SortDesc = -1

	// =========================================================================
	// Persistence Keywords
	// =========================================================================

	// TableFileExtension is the file extension for table data files.
	TableFileExtension = ".json"
	// TempFileSuffix is the suffix added to temporary files during writes.
	TempFileSuffix = ".tmp"
	// BackupDirName is the directory under the data root that holds backups.
	// It cannot collide with a database id, which must start with a letter or digit.
	BackupDirName = "_backups"
	// BackupNameFormat names each backup after the time it was taken.
	BackupNameFormat = "2006-01-02_15-04-05.000"
	// DefaultBackupKeep is how many backups per database are retained.
	DefaultBackupKeep = 5
	// DirPerm and FilePerm are the permissions used for created storage.
	DirPerm  = 0o755
	FilePerm = 0o644
)
