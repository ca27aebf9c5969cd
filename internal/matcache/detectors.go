package matcache

import (
	"reflect"
	"strings"
)

// PlanNode is any node in an expanded plan tree. Detection logic never
// switches on a closed set of concrete node types; it walks the tree
// generically and asks each node, via interface assertion, whether it has
// scan capability (ScanNode) — the "polymorphism over scan nodes" shape:
// model leaves as a capability set, not a tagged enum.
type PlanNode interface {
	Children() []PlanNode
}

// ScanNode is the capability set a table-scan leaf exposes: a qualified
// name, an optional captured version tag, and whether it references a
// catalog-resident table at all (a scan over an ephemeral or synthetic
// source is never catalog-resident and conservatively forces re-expansion).
type ScanNode interface {
	PlanNode
	QualifiedName() []string
	VersionTag() (tag string, ok bool)
	IsCatalogResident() bool
}

// TableScanNode is the only scan leaf this module ships; Expander
// implementations are free to return their own ScanNode implementations,
// since detection only ever depends on the interface.
type TableScanNode struct {
	Qualified       []string
	Tag             string
	HasTag          bool
	CatalogResident bool
}

func (n *TableScanNode) Children() []PlanNode        { return nil }
func (n *TableScanNode) QualifiedName() []string     { return n.Qualified }
func (n *TableScanNode) VersionTag() (string, bool)  { return n.Tag, n.HasTag }
func (n *TableScanNode) IsCatalogResident() bool     { return n.CatalogResident }

// InternalNode is a non-leaf plan node (join, filter, project, ...); its
// specific operator kind is irrelevant to change detection, only its
// children are.
type InternalNode struct {
	Kids []PlanNode
}

func (n *InternalNode) Children() []PlanNode { return n.Kids }

// scanLeaves collects every ScanNode reachable from root. A node that
// implements ScanNode is treated as a leaf even if it reports children;
// scans do not have catalog-meaningful descendants.
func scanLeaves(root PlanNode) []ScanNode {
	var leaves []ScanNode
	var walk func(PlanNode)
	walk = func(n PlanNode) {
		if n == nil {
			return
		}
		if sn, ok := n.(ScanNode); ok {
			leaves = append(leaves, sn)
			return
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}
	walk(root)
	return leaves
}

func datasetKeyForScan(n ScanNode) string {
	return strings.Join(n.QualifiedName(), ".")
}

// schemaChanged reports whether m's dataset schema, as currently known to
// the catalog, differs from the schema snapshot captured in old. A dataset
// no longer present in the catalog counts as changed.
func schemaChanged(old *ExpandedDescriptor, m *Materialization, view CatalogView) bool {
	cfg, ok := view.DatasetConfig(m.DatasetKey)
	if !ok {
		return true
	}
	return !reflect.DeepEqual(cfg.Schema, old.SchemaSnapshot)
}

// isExternalMetadataUpdated traverses old's expanded plan's scan leaves and
// compares each catalog-resident scan's captured version tag against the
// catalog's current tag for that dataset. Any mismatch, missing dataset, or
// non-catalog-resident scan forces re-expansion.
func isExternalMetadataUpdated(old *ExpandedDescriptor, view CatalogView) bool {
	for _, scan := range scanLeaves(old.Plan) {
		if !scan.IsCatalogResident() {
			return true
		}
		cfg, ok := view.DatasetConfig(datasetKeyForScan(scan))
		if !ok {
			return true
		}
		tag, hasTag := scan.VersionTag()
		if !hasTag || tag != cfg.Tag {
			return true
		}
	}
	return false
}
