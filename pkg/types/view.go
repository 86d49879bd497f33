package types

// SortCriterion is the field the process list is ordered by.
type SortCriterion string

// Supported sort criteria.
const (
	SortPID    SortCriterion = "PID"
	SortMemory SortCriterion = "Memory"
	SortCPU    SortCriterion = "CPU"
	SortGPUMem SortCriterion = "GPUMem"
	SortUser   SortCriterion = "User"
)

// SortDirection is the ordering direction applied after SortCriterion.
type SortDirection string

// Supported sort directions.
const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Notification is one entry in the bounded, TTL'd notification queue.
type Notification struct {
	Reason  string
	Message string
	Status  bool // true for repeatable "status" notices (e.g. Initializing...)
}

// ViewState holds UI state that lives inside the snapshot but is never
// measurement data: tab selection, scroll offsets, sort order and the
// marquee animation offsets for over-long names.
type ViewState struct {
	Tabs            []string
	CurrentTab      int
	TabScrollOffset int

	SelectedProcessIndex int
	ProcessStartIndex    int

	GPUScrollOffset     int
	StorageScrollOffset int

	// MarqueeOffsets maps an entity id (device uuid or host id) to its
	// current horizontal scroll offset, advanced one step per
	// Store.AdvanceMarquee call.
	MarqueeOffsets map[string]int

	SortCriteria  SortCriterion
	SortDirection SortDirection

	Loading        bool
	ShowHelp       bool
	ShowPerCoreCPU bool

	FrameCounter uint64
}

// NewViewState returns a ViewState with sane defaults: "All" tab selected,
// PID ascending sort, no popups open.
func NewViewState() *ViewState {
	return &ViewState{
		Tabs:           []string{"All"},
		SortCriteria:   SortPID,
		SortDirection:  SortAsc,
		MarqueeOffsets: make(map[string]int),
	}
}
