package definition

// Command is the closed set of definition commands.
type Command interface {
	commandName() string
}

type Create struct {
	Title     string
	Schema    string
	CreatedBy string
}

// Load is Create for a schema read from a file; SourceFile is kept as
// provenance.
type Load struct {
	Title      string
	Schema     string
	SourceFile string
	LoadedBy   string
}

type Update struct {
	Schema    string
	UpdatedBy string
}

type Validate struct {
	ValidatedBy string
}

type Activate struct {
	ActivatedBy string
}

type Deactivate struct {
	DeactivatedBy string
}

type Delete struct {
	DeletedBy string
}

func (Create) commandName() string     { return "create" }
func (Load) commandName() string       { return "load" }
func (Update) commandName() string     { return "update" }
func (Validate) commandName() string   { return "validate" }
func (Activate) commandName() string   { return "activate" }
func (Deactivate) commandName() string { return "deactivate" }
func (Delete) commandName() string     { return "delete" }

// CommandName is the lowercase command name used in logs and metrics.
func CommandName(c Command) string { return c.commandName() }
