package metadata

type Offset2D struct {
	X, Y int32
}

type Extent2D struct {
	Width, Height uint32
}

type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

type LoadOpKind uint8

const (
	LoadOpLoad LoadOpKind = iota
	LoadOpClearColor
	LoadOpClearDepth
	LoadOpDontCare
)

// LoadOp selects how an attachment's previous contents are treated when a
// render pass begins.
type LoadOp struct {
	Kind       LoadOpKind
	ClearColor [4]float32
	ClearDepth float32
}

func LoadOpClearedColor(r, g, b, a float32) LoadOp {
	return LoadOp{Kind: LoadOpClearColor, ClearColor: [4]float32{r, g, b, a}}
}

func LoadOpClearedDepth(depth float32) LoadOp {
	return LoadOp{Kind: LoadOpClearDepth, ClearDepth: depth}
}
