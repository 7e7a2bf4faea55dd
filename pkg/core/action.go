package core

import "fmt"

// ActionKind discriminates the closed set of action variants.
type ActionKind string

// Action kind constants.
const (
	ActionKindTable           ActionKind = "table"
	ActionKindOperation       ActionKind = "operation"
	ActionKindAssertion       ActionKind = "assertion"
	ActionKindDeclaration     ActionKind = "declaration"
	ActionKindNotebook        ActionKind = "notebook"
	ActionKindDataPreparation ActionKind = "data_preparation"
)

// TableKind selects how a table action is materialized.
type TableKind string

// Table kind constants.
const (
	TableKindTable       TableKind = "table"
	TableKindView        TableKind = "view"
	TableKindIncremental TableKind = "incremental"
)

// Hermeticity describes whether an action reads only its declared dependencies.
type Hermeticity string

// Hermeticity constants.
const (
	HermeticityUnknown     Hermeticity = "unknown"
	HermeticityHermetic    Hermeticity = "hermetic"
	HermeticityNonHermetic Hermeticity = "non_hermetic"
)

// SchemaChangePolicy governs how an incremental merge reconciles the
// target schema with the query-result schema before merging.
type SchemaChangePolicy string

// Schema change policy constants.
const (
	// SchemaChangeIgnore performs no reconciliation; a mismatched merge
	// fails naturally at the warehouse.
	SchemaChangeIgnore SchemaChangePolicy = "ignore"
	// SchemaChangeFail aborts the action before any DDL or DML when the
	// column sets differ.
	SchemaChangeFail SchemaChangePolicy = "fail"
	// SchemaChangeExtend adds new query columns to the target but forbids
	// removed or renamed columns.
	SchemaChangeExtend SchemaChangePolicy = "extend"
	// SchemaChangeSynchronize adds new columns and drops columns absent
	// from the query result.
	SchemaChangeSynchronize SchemaChangePolicy = "synchronize"
)

// LoadMode selects the strategy for populating a data preparation output.
type LoadMode string

// Load mode constants.
const (
	// LoadModeReplace rebuilds the output from scratch on every run.
	LoadModeReplace LoadMode = "replace"
	// LoadModeAppend inserts all produced rows.
	LoadModeAppend LoadMode = "append"
	// LoadModeMaximum inserts rows whose load column exceeds the current
	// maximum in the target.
	LoadModeMaximum LoadMode = "maximum"
	// LoadModeUnique inserts rows whose load column value is not already
	// present in the target.
	LoadModeUnique LoadMode = "unique"
	// LoadModeAutomatic lets the builder pick maximum when a load column
	// is configured, append otherwise.
	LoadModeAutomatic LoadMode = "automatic"
)

// Action is a node of the compiled graph. It is a closed tagged variant:
// Kind names the variant and exactly one of the payload pointers is set.
// Actions are immutable once the graph is compiled.
type Action struct {
	// Target is the action's own identity.
	Target Target `json:"target" yaml:"target"`
	// CanonicalTarget is the pre-suffix/prefix identity used for
	// cross-run comparison. Zero means identical to Target.
	CanonicalTarget Target `json:"canonicalTarget,omitempty" yaml:"canonical_target,omitempty"`
	// Dependencies are the action's declared upstream edges.
	Dependencies []DependencyRef `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	// Tags are metadata labels for selection.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	// Disabled actions stay in the graph but are never dispatched.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	// Hermeticity declares whether the action reads undeclared inputs.
	Hermeticity Hermeticity `json:"hermeticity,omitempty" yaml:"hermeticity,omitempty"`
	// DependOnDependencyAssertions adds each direct dependency's
	// assertions to this action's own dependencies.
	DependOnDependencyAssertions bool `json:"dependOnDependencyAssertions,omitempty" yaml:"depend_on_dependency_assertions,omitempty"`
	// Parent back-references the action that generated this one.
	// Set only on assertions materialized from table shorthand.
	Parent *Target `json:"parent,omitempty" yaml:"parent,omitempty"`

	Kind ActionKind `json:"kind" yaml:"kind"`

	Table           *TableSpec           `json:"table,omitempty" yaml:"table,omitempty"`
	Operation       *OperationSpec       `json:"operation,omitempty" yaml:"operation,omitempty"`
	Assertion       *AssertionSpec       `json:"assertion,omitempty" yaml:"assertion,omitempty"`
	Declaration     *DeclarationSpec     `json:"declaration,omitempty" yaml:"declaration,omitempty"`
	Notebook        *NotebookSpec        `json:"notebook,omitempty" yaml:"notebook,omitempty"`
	DataPreparation *DataPreparationSpec `json:"dataPreparation,omitempty" yaml:"data_preparation,omitempty"`
}

// TableSpec is the payload of a table, view, or incremental action.
type TableSpec struct {
	Kind  TableKind `json:"kind" yaml:"kind"`
	Query string    `json:"query" yaml:"query"`

	PreOps  []string `json:"preOps,omitempty" yaml:"pre_ops,omitempty"`
	PostOps []string `json:"postOps,omitempty" yaml:"post_ops,omitempty"`

	// Incremental merge settings; meaningful only for TableKindIncremental.
	IncrementalQuery   string             `json:"incrementalQuery,omitempty" yaml:"incremental_query,omitempty"`
	IncrementalPreOps  []string           `json:"incrementalPreOps,omitempty" yaml:"incremental_pre_ops,omitempty"`
	IncrementalPostOps []string           `json:"incrementalPostOps,omitempty" yaml:"incremental_post_ops,omitempty"`
	UniqueKey          []string           `json:"uniqueKey,omitempty" yaml:"unique_key,omitempty"`
	OnSchemaChange     SchemaChangePolicy `json:"onSchemaChange,omitempty" yaml:"on_schema_change,omitempty"`

	// Warehouse options passed through to the adapter unmodified.
	PartitionBy string   `json:"partitionBy,omitempty" yaml:"partition_by,omitempty"`
	ClusterBy   []string `json:"clusterBy,omitempty" yaml:"cluster_by,omitempty"`

	// Assertions is quality-check shorthand expanded into dependent
	// assertion actions during normalization.
	Assertions *TableAssertions `json:"assertions,omitempty" yaml:"assertions,omitempty"`
}

// TableAssertions is the shorthand block on a table from which
// assertion actions are generated.
type TableAssertions struct {
	// UniqueKey asserts no duplicate rows over one column set.
	UniqueKey []string `json:"uniqueKey,omitempty" yaml:"unique_key,omitempty"`
	// UniqueKeys asserts uniqueness over several independent column sets.
	UniqueKeys [][]string `json:"uniqueKeys,omitempty" yaml:"unique_keys,omitempty"`
	// NonNull asserts the named columns contain no NULLs.
	NonNull []string `json:"nonNull,omitempty" yaml:"non_null,omitempty"`
	// RowConditions asserts each boolean expression holds for every row.
	RowConditions []string `json:"rowConditions,omitempty" yaml:"row_conditions,omitempty"`
}

// OperationSpec is the payload of an operation action: raw statements
// run in order against the warehouse.
type OperationSpec struct {
	Queries []string `json:"queries" yaml:"queries"`
	// HasOutput marks operations that leave a queryable relation behind.
	HasOutput bool `json:"hasOutput,omitempty" yaml:"has_output,omitempty"`
}

// AssertionSpec is the payload of an assertion action. The query must
// return zero rows to pass; every returned row is a failing record.
type AssertionSpec struct {
	Query string `json:"query" yaml:"query"`
}

// DeclarationSpec is the payload of a declaration action: an external
// relation that contributes only identity, never statements.
type DeclarationSpec struct {
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// NotebookSpec is the payload of a notebook action. Contents are handed
// unmodified to the external notebook runner.
type NotebookSpec struct {
	Contents string `json:"contents" yaml:"contents"`
}

// DataPreparationSpec is the payload of a data preparation action.
type DataPreparationSpec struct {
	Query string `json:"query" yaml:"query"`
	// Mode selects the load strategy; empty means LoadModeAutomatic.
	Mode LoadMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	// Column orders or deduplicates incoming rows for the maximum and
	// unique modes, and resolves automatic to maximum when set.
	Column string `json:"column,omitempty" yaml:"column,omitempty"`
	// ErrorTable receives rows that fail loading instead of aborting
	// the whole action.
	ErrorTable *Target `json:"errorTable,omitempty" yaml:"error_table,omitempty"`
}

// Identity returns the action's readable dotted identity.
func (a *Action) Identity() string {
	return a.Target.String()
}

// HasTag reports whether the action carries the given tag.
func (a *Action) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// DependencyTargets returns the targets of all declared dependencies.
func (a *Action) DependencyTargets() []Target {
	out := make([]Target, 0, len(a.Dependencies))
	for _, d := range a.Dependencies {
		out = append(out, d.Target)
	}
	return out
}

// DependsOn reports whether the action declares a dependency on target.
func (a *Action) DependsOn(target Target) bool {
	for _, d := range a.Dependencies {
		if d.Target == target {
			return true
		}
	}
	return false
}

// validate checks that the variant payload matches Kind.
func (a *Action) validate() error {
	if a.Target.Name == "" {
		return fmt.Errorf("action %s: target name is required", a.Target.Key())
	}
	var present int
	for _, set := range []bool{
		a.Table != nil,
		a.Operation != nil,
		a.Assertion != nil,
		a.Declaration != nil,
		a.Notebook != nil,
		a.DataPreparation != nil,
	} {
		if set {
			present++
		}
	}
	if present > 1 {
		return fmt.Errorf("action %s: multiple variant payloads set", a.Identity())
	}
	switch a.Kind {
	case ActionKindTable:
		if a.Table == nil {
			return fmt.Errorf("action %s: kind %q requires a table payload", a.Identity(), a.Kind)
		}
		switch a.Table.Kind {
		case TableKindTable, TableKindView, TableKindIncremental:
		default:
			return fmt.Errorf("action %s: unknown table kind %q", a.Identity(), a.Table.Kind)
		}
	case ActionKindOperation:
		if a.Operation == nil {
			return fmt.Errorf("action %s: kind %q requires an operation payload", a.Identity(), a.Kind)
		}
	case ActionKindAssertion:
		if a.Assertion == nil {
			return fmt.Errorf("action %s: kind %q requires an assertion payload", a.Identity(), a.Kind)
		}
	case ActionKindDeclaration:
		// Declarations may omit the payload entirely.
	case ActionKindNotebook:
		if a.Notebook == nil {
			return fmt.Errorf("action %s: kind %q requires a notebook payload", a.Identity(), a.Kind)
		}
	case ActionKindDataPreparation:
		if a.DataPreparation == nil {
			return fmt.Errorf("action %s: kind %q requires a data preparation payload", a.Identity(), a.Kind)
		}
	default:
		return fmt.Errorf("action %s: unknown kind %q", a.Identity(), a.Kind)
	}
	return nil
}
