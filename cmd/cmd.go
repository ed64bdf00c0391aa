// Package cmd provides CLI command implementations for Lattice.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/latticehq/lattice/internal/approval"
	"github.com/latticehq/lattice/internal/graph"
	"github.com/latticehq/lattice/internal/notify"
	"github.com/latticehq/lattice/internal/registry"
	"github.com/latticehq/lattice/internal/relate"
	"github.com/latticehq/lattice/internal/resolve"
	"github.com/latticehq/lattice/internal/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

// dataDirName is the per-project data directory.
const dataDirName = ".lattice"

// meta is the meta.json document written at init time.
type meta struct {
	Version     string   `json:"version"`
	CreatedAt   string   `json:"created_at"`
	Catalogue   string   `json:"catalogue"`
	ManualKinds []string `json:"manual_kinds"`
}

// InitCmd creates the data directory, validates the catalogue, and opens
// the edge store.
type InitCmd struct {
	Path      string   `arg:"" optional:"" default:"." help:"Project directory"`
	Catalogue string   `help:"Path to a YAML edge type catalogue (defaults to the built-in catalogue)"`
	Manual    []string `help:"Target kinds requiring manual approval" default:"organisation"`
}

// Run executes the init command.
func (c *InitCmd) Run() error {
	root, err := filepath.Abs(c.Path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	dataDir := filepath.Join(root, dataDirName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating %s directory: %w", dataDirName, err)
	}

	catName := "built-in"
	if c.Catalogue != "" {
		// Validate before copying, so a bad catalogue never lands in the
		// data directory.
		if _, err := registry.LoadFile(c.Catalogue); err != nil {
			return err
		}
		data, err := os.ReadFile(c.Catalogue)
		if err != nil {
			return fmt.Errorf("reading catalogue: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dataDir, "catalogue.yaml"), data, 0o644); err != nil {
			return fmt.Errorf("writing catalogue: %w", err)
		}
		catName = filepath.Base(c.Catalogue)
	}

	reg, err := loadRegistryAt(dataDir)
	if err != nil {
		return err
	}

	st := store.NewBadgerStore(reg.SingularCodes())
	if err := st.Initialize(filepath.Join(dataDir, "badger"), false); err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer func() { _ = st.Close() }()

	m := meta{
		Version:     Version,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Catalogue:   catName,
		ManualKinds: c.Manual,
	}
	metaJSON, _ := json.MarshalIndent(m, "", "  ")
	if err := os.WriteFile(filepath.Join(dataDir, "meta.json"), metaJSON, 0o644); err != nil {
		return fmt.Errorf("writing meta.json: %w", err)
	}

	color.Green("✓ Initialized %s", dataDir)
	fmt.Printf("  Catalogue:     %s (%d edge types)\n", catName, len(reg.All()))
	fmt.Printf("  Manual kinds:  %s\n", strings.Join(c.Manual, ", "))
	return nil
}

// CheckCmd resolves whether an actor may perform an action on a target.
type CheckCmd struct {
	Actor  string   `arg:"" help:"Actor node reference (kind:id)"`
	Code   string   `arg:"" help:"Action code (e.g. EDT, LIK)"`
	Target string   `arg:"" help:"Target node reference (kind:id)"`
	Roles  []string `help:"Actor role names, consulted for admin bypass"`
	Perms  []string `help:"Permission references the actor satisfies (default: all)"`
	Kinds  bool     `help:"Treat actor/target as bare kinds (skip instance rules)"`
}

// Run executes the check command.
func (c *CheckCmd) Run() error {
	actor, err := graph.ParseNodeRef(c.Actor)
	if err != nil {
		return err
	}
	target, err := graph.ParseNodeRef(c.Target)
	if err != nil {
		return err
	}

	eng, err := loadEngine(true, c.Perms)
	if err != nil {
		return err
	}
	defer eng.close()

	ok, err := eng.resolver.Check(context.Background(), resolve.CheckRequest{
		Codes:        []string{c.Code},
		Actor:        actor,
		Target:       target,
		ActorRoles:   c.Roles,
		HasInstances: !c.Kinds,
	})
	if err != nil {
		return fmt.Errorf("checking permission: %w", err)
	}

	if ok {
		color.Green("✓ %s may %s %s", actor, c.Code, target)
		return nil
	}
	color.Red("✗ %s may not %s %s", actor, c.Code, target)
	// Distinguish "forbidden" from usage errors for scripting callers.
	os.Exit(1)
	return nil
}

// GrantCmd materializes a relationship edge (plus implied edges).
type GrantCmd struct {
	Actor   string `arg:"" help:"Actor node reference (kind:id)"`
	Code    string `arg:"" help:"Action code"`
	Target  string `arg:"" help:"Target node reference (kind:id)"`
	Variant string `help:"Optional variant recorded on the edge"`
}

// Run executes the grant command.
func (c *GrantCmd) Run() error {
	actor, err := graph.ParseNodeRef(c.Actor)
	if err != nil {
		return err
	}
	target, err := graph.ParseNodeRef(c.Target)
	if err != nil {
		return err
	}

	eng, err := loadEngine(false, nil)
	if err != nil {
		return err
	}
	defer eng.close()

	var opts []relate.MakeOption
	if c.Variant != "" {
		opts = append(opts, relate.WithVariant(c.Variant))
	}

	edge, err := eng.factory.Make(context.Background(), c.Code, actor, target, opts...)
	if err != nil {
		return fmt.Errorf("creating relationship: %w", err)
	}

	color.Green("✓ Edge #%d: %s -[%s]-> %s", edge.ID, edge.From, edge.TypeCode, edge.To)
	return nil
}

// RevokeCmd removes a relationship (unfollow, unlike, leave).
type RevokeCmd struct {
	Actor  string `arg:"" help:"Actor node reference (kind:id)"`
	Code   string `arg:"" help:"Action code"`
	Target string `arg:"" help:"Target node reference (kind:id)"`
}

// Run executes the revoke command.
func (c *RevokeCmd) Run() error {
	actor, err := graph.ParseNodeRef(c.Actor)
	if err != nil {
		return err
	}
	target, err := graph.ParseNodeRef(c.Target)
	if err != nil {
		return err
	}

	eng, err := loadEngine(false, nil)
	if err != nil {
		return err
	}
	defer eng.close()

	count, err := eng.factory.Remove(context.Background(), c.Code, actor, target)
	if err != nil {
		return fmt.Errorf("removing relationship: %w", err)
	}

	if count == 0 {
		fmt.Println("No matching relationship (already removed)")
		return nil
	}
	color.Green("✓ Removed %d edge(s)", count)
	return nil
}

// RelationsCmd lists the edges touching a node.
type RelationsCmd struct {
	Node     string   `arg:"" help:"Node reference (kind:id)"`
	Codes    []string `help:"Filter by action codes"`
	Incoming bool     `help:"List incoming edges instead of outgoing"`
}

// Run executes the relations command.
func (c *RelationsCmd) Run() error {
	node, err := graph.ParseNodeRef(c.Node)
	if err != nil {
		return err
	}

	eng, err := loadEngine(true, nil)
	if err != nil {
		return err
	}
	defer eng.close()

	ctx := context.Background()
	var edges []*graph.Edge
	if c.Incoming {
		edges, err = eng.store.AllTo(ctx, node, c.Codes)
	} else {
		edges, err = eng.store.AllFrom(ctx, node, c.Codes)
	}
	if err != nil {
		return fmt.Errorf("listing relationships: %w", err)
	}

	if len(edges) == 0 {
		fmt.Println("No relationships found")
		return nil
	}
	for _, e := range edges {
		line := fmt.Sprintf("#%d  %s -[%s]-> %s  %s", e.ID, e.From, e.TypeCode, e.To,
			e.CreatedAt.Format(time.RFC3339))
		if e.Variant != "" {
			line += "  (" + e.Variant + ")"
		}
		fmt.Println(line)
	}
	return nil
}

// ApprovalsCmd shows a target's derived approval state and history.
type ApprovalsCmd struct {
	Target string `arg:"" help:"Target node reference (kind:id)"`
}

// Run executes the approvals command.
func (c *ApprovalsCmd) Run() error {
	target, err := graph.ParseNodeRef(c.Target)
	if err != nil {
		return err
	}

	eng, err := loadEngine(true, nil)
	if err != nil {
		return err
	}
	defer eng.close()

	ctx := context.Background()
	state, err := eng.workflow.StateOf(ctx, target)
	if err != nil {
		return fmt.Errorf("deriving approval state: %w", err)
	}

	mode := eng.workflow.ModeFor(target.Kind)
	fmt.Printf("Target: %s\nMode:   %s\nState:  %s\n", target, mode, state)

	history, err := eng.store.AllTo(ctx, target, []string{graph.CodeApproval})
	if err != nil {
		return fmt.Errorf("listing approval history: %w", err)
	}
	if len(history) > 0 {
		fmt.Println("\nHistory:")
		for _, e := range history {
			fmt.Printf("  #%d  %s  %s  %s\n", e.ID, e.From, e.Variant,
				e.CreatedAt.Format(time.RFC3339))
		}
	}
	return nil
}

// ApproveCmd records an approval transition.
type ApproveCmd struct {
	Approver string `arg:"" help:"Approver node reference (kind:id)"`
	Target   string `arg:"" help:"Target node reference (kind:id)"`
}

// Run executes the approve command.
func (c *ApproveCmd) Run() error {
	return runTransition(c.Approver, c.Target, graph.VariantApprove)
}

// DeclineCmd records a decline transition.
type DeclineCmd struct {
	Approver string `arg:"" help:"Approver node reference (kind:id)"`
	Target   string `arg:"" help:"Target node reference (kind:id)"`
}

// Run executes the decline command.
func (c *DeclineCmd) Run() error {
	return runTransition(c.Approver, c.Target, graph.VariantDecline)
}

func runTransition(approverRef, targetRef, variant string) error {
	approver, err := graph.ParseNodeRef(approverRef)
	if err != nil {
		return err
	}
	target, err := graph.ParseNodeRef(targetRef)
	if err != nil {
		return err
	}

	eng, err := loadEngine(false, nil)
	if err != nil {
		return err
	}
	defer eng.close()

	ctx := context.Background()
	var warning *approval.Warning
	if variant == graph.VariantApprove {
		warning, err = eng.workflow.Approve(ctx, approver, target)
	} else {
		warning, err = eng.workflow.Decline(ctx, approver, target)
	}
	if err != nil {
		return fmt.Errorf("recording %s: %w", variant, err)
	}

	if warning != nil {
		color.Yellow("! %s", warning)
	}
	state, err := eng.workflow.StateOf(ctx, target)
	if err != nil {
		return fmt.Errorf("deriving approval state: %w", err)
	}
	color.Green("✓ %s is now %s", target, state)
	return nil
}

// TypesCmd prints the edge type catalogue.
type TypesCmd struct {
	FromKind string `help:"Filter by from kind"`
	ToKind   string `help:"Filter by to kind"`
}

// Run executes the types command.
func (c *TypesCmd) Run() error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	for _, t := range reg.All() {
		if c.FromKind != "" && !t.Matches(c.FromKind, t.ToKind) {
			continue
		}
		if c.ToKind != "" && !t.Matches(t.FromKind, c.ToKind) {
			continue
		}
		printEdgeType(t)
	}
	return nil
}

func printEdgeType(t graph.EdgeType) {
	from, to := t.FromKind, t.ToKind
	if from == "" {
		from = "*"
	}
	if to == "" {
		to = "*"
	}
	header := fmt.Sprintf("%s  %s -> %s", t.Code, from, to)
	if t.ParentCode != "" {
		header += "  (child of " + t.ParentCode + ")"
	}
	color.Cyan(header)
	if t.RequiredPreviousCode != "" {
		fmt.Printf("    requires: %s\n", t.RequiredPreviousCode)
	}
	if len(t.ImpliedCodes) > 0 {
		fmt.Printf("    implies:  %s\n", strings.Join(t.ImpliedCodes, ", "))
	}
	if t.PermissionRef != "" {
		fmt.Printf("    perm:     %s\n", t.PermissionRef)
	}
	if len(t.AdminBypassGroups) > 0 {
		fmt.Printf("    admin:    %s\n", strings.Join(t.AdminBypassGroups, ", "))
	}
	if t.Singular {
		fmt.Println("    singular")
	}
}

// engine bundles the wired components behind the CLI commands.
type engine struct {
	reg      *registry.Registry
	store    *store.BadgerStore
	resolver *resolve.Resolver
	factory  *relate.Factory
	workflow *approval.Workflow
	async    *notify.AsyncDispatcher
}

func (e *engine) close() {
	if e.async != nil {
		e.async.Close()
	}
	_ = e.store.Close()
}

// loadEngine opens the data directory in the working directory and wires
// the full engine. perms, when non-nil, restricts which permission
// references the CLI authorizer reports satisfied.
func loadEngine(readOnly bool, perms []string) (*engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	dataDir := filepath.Join(cwd, dataDirName)
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("no %s directory found. Run 'lattice init' first", dataDirName)
	}

	reg, err := loadRegistryAt(dataDir)
	if err != nil {
		return nil, err
	}

	st := store.NewBadgerStore(reg.SingularCodes())
	if err := st.Initialize(filepath.Join(dataDir, "badger"), readOnly); err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	authz := resolve.AuthorizerFunc(func(ctx context.Context, actor graph.NodeRef, refs []string) (bool, error) {
		if perms == nil {
			return true, nil
		}
		for _, ref := range refs {
			for _, p := range perms {
				if ref == p {
					return true, nil
				}
			}
		}
		return false, nil
	})

	async := notify.NewAsyncDispatcher(notify.LogDispatcher{}, 64)
	recipients := notify.EndpointResolver{}
	factory := relate.New(reg, st, async, recipients)

	cfg := approval.Config{ModeFor: make(map[string]approval.Mode)}
	for _, kind := range manualKinds(dataDir) {
		cfg.ModeFor[kind] = approval.Manual
	}

	return &engine{
		reg:      reg,
		store:    st,
		resolver: resolve.New(reg, st, authz, resolve.WithAdminGroups("administrators")),
		factory:  factory,
		workflow: approval.New(cfg, reg, st, factory, async, recipients),
		async:    async,
	}, nil
}

// loadRegistryAt loads the project catalogue from dataDir, falling back
// to the built-in catalogue when none was installed at init time.
func loadRegistryAt(dataDir string) (*registry.Registry, error) {
	path := filepath.Join(dataDir, "catalogue.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return registry.Default(), nil
	}
	return registry.LoadFile(path)
}

func loadRegistry() (*registry.Registry, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	dataDir := filepath.Join(cwd, dataDirName)
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		return registry.Default(), nil
	}
	return loadRegistryAt(dataDir)
}

// manualKinds reads the manual approval kinds recorded in meta.json.
func manualKinds(dataDir string) []string {
	f, err := os.Open(filepath.Join(dataDir, "meta.json"))
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil
	}
	var m meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m.ManualKinds
}

// CLI is the root Kong command structure.
type CLI struct {
	Version kong.VersionFlag `help:"Show version information"`

	// Commands
	Init      InitCmd      `cmd:"" help:"Create the data directory and validate the catalogue"`
	Check     CheckCmd     `cmd:"" help:"Check whether an actor may perform an action on a target"`
	Grant     GrantCmd     `cmd:"" help:"Create a relationship edge (plus implied edges)"`
	Revoke    RevokeCmd    `cmd:"" help:"Remove a relationship"`
	Relations RelationsCmd `cmd:"" help:"List edges touching a node"`
	Approvals ApprovalsCmd `cmd:"" help:"Show a target's derived approval state"`
	Approve   ApproveCmd   `cmd:"" help:"Record an approval transition"`
	Decline   DeclineCmd   `cmd:"" help:"Record a decline transition"`
	Types     TypesCmd     `cmd:"" help:"Print the edge type catalogue"`
	Validate  ValidateCmd  `cmd:"" help:"Validate a catalogue file"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	kongCtx := kong.Parse(c,
		kong.Name("lattice"),
		kong.Description("Typed relationship graph and permission engine"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)

	return kongCtx.Run()
}
