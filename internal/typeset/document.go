package typeset

// BlockKind identifies the kind of a content block
type BlockKind int

const (
	// BlockTitle is the document title line
	BlockTitle BlockKind = iota
	// BlockHeading is a section heading
	BlockHeading
	// BlockText is a paragraph of body text
	BlockText
	// BlockBullet is a bulleted list item
	BlockBullet
	// BlockSpacer is vertical whitespace
	BlockSpacer
)

// String returns the string representation of the block kind
func (k BlockKind) String() string {
	switch k {
	case BlockTitle:
		return "title"
	case BlockHeading:
		return "heading"
	case BlockText:
		return "text"
	case BlockBullet:
		return "bullet"
	case BlockSpacer:
		return "spacer"
	default:
		return "unknown"
	}
}

// NoFont selects the exporter's built-in font
const NoFont = -1

// Block is one unit of laid-out content
type Block struct {
	Kind BlockKind
	Text string
	// Level is the heading depth, 1 to 3
	Level int
	// Size is the font size in points
	Size float64
	// Height is the spacer height in points
	Height float64
	// Font is an index into the world's fonts, or NoFont
	Font int
}

// Page is an ordered list of blocks
type Page struct {
	Blocks []Block
}

// Document is the compiled, paginated result of a document program
type Document struct {
	Title string
	Pages []Page
	// Fonts holds the faces referenced by blocks, indexed like Block.Font
	Fonts map[int]Font
}

// BlockCount returns the total number of blocks across pages
func (d *Document) BlockCount() int {
	n := 0
	for _, p := range d.Pages {
		n += len(p.Blocks)
	}
	return n
}

// builder accumulates blocks while a document program runs
type builder struct {
	doc  Document
	font int
}

func newBuilder() *builder {
	return &builder{
		doc: Document{
			Pages: []Page{{}},
			Fonts: make(map[int]Font),
		},
		font: NoFont,
	}
}

func (b *builder) add(block Block) {
	block.Font = b.font
	last := &b.doc.Pages[len(b.doc.Pages)-1]
	last.Blocks = append(last.Blocks, block)
}

func (b *builder) newPage() {
	b.doc.Pages = append(b.doc.Pages, Page{})
}

func (b *builder) setFont(index int, f Font) {
	b.font = index
	b.doc.Fonts[index] = f
}

func (b *builder) document() *Document {
	doc := b.doc
	return &doc
}
