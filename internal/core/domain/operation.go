package domain

type OperationType string
type ResourceType string

const (
	OperationCreate  OperationType = "Create"
	OperationRead    OperationType = "Read"
	OperationReplace OperationType = "Replace"
	OperationUpsert  OperationType = "Upsert"
	OperationDelete  OperationType = "Delete"
	OperationQuery   OperationType = "Query"
	OperationPatch   OperationType = "Patch"

	ResourceDatabase   ResourceType = "Database"
	ResourceCollection ResourceType = "Collection"
	ResourceDocument   ResourceType = "Document"
	ResourceStoredProc ResourceType = "StoredProcedure"
)

// readOnlyOperations can be served by any readable region.
var readOnlyOperations = map[OperationType]bool{
	OperationRead:  true,
	OperationQuery: true,
}

// ParseOperationType maps a case-sensitive name to its OperationType.
func ParseOperationType(s string) (OperationType, bool) {
	switch op := OperationType(s); op {
	case OperationCreate, OperationRead, OperationReplace, OperationUpsert,
		OperationDelete, OperationQuery, OperationPatch:
		return op, true
	}
	return "", false
}

// IsReadOnly reports whether the operation never mutates state.
func (o OperationType) IsReadOnly() bool {
	return readOnlyOperations[o]
}
