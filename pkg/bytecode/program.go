package bytecode

// Program is a fully linked HashLink bytecode file. Every structural element
// lives in one of its pools and is referenced elsewhere by typed index.
//
// A Program is immutable once Link has run; all query methods are safe for
// concurrent use.
type Program struct {
	Version uint8
	Debug   bool

	Ints       []int32
	Floats     []float64
	Strings    []string
	Bytes      []byte
	BytesPos   []int
	DebugFiles []string
	Types      []Type
	Globals    []RefType
	Natives    []Native
	Functions  []Function
	Constants  []Constant
	Entrypoint RefFun

	// Derived by Link.
	findexes []FunPtr
	hasFun   []bool
	fnames   map[string][]RefFun
}

// MaxFIndex returns the size of the function index space.
func (p *Program) MaxFIndex() int { return len(p.findexes) }

// EachString calls fn for every string in pool order until fn returns false.
func (p *Program) EachString(fn func(RefString, string) bool) {
	for i, s := range p.Strings {
		if !fn(RefString(i), s) {
			return
		}
	}
}

// EachType calls fn for every type in pool order until fn returns false.
func (p *Program) EachType(fn func(RefType, *Type) bool) {
	for i := range p.Types {
		if !fn(RefType(i), &p.Types[i]) {
			return
		}
	}
}

// EachFunction calls fn for every user function in pool order until fn
// returns false.
func (p *Program) EachFunction(fn func(*Function) bool) {
	for i := range p.Functions {
		if !fn(&p.Functions[i]) {
			return
		}
	}
}

// FunctionsNamed returns the function indices bound to a name. The
// entrypoint is registered as "init".
func (p *Program) FunctionsNamed(name string) []RefFun {
	return p.fnames[name]
}

// EntrypointFunction returns the entrypoint's body.
func (p *Program) EntrypointFunction() (*Function, error) {
	return p.GetFunction(p.Entrypoint)
}

// signature resolves a function type without reporting failures.
func (p *Program) signature(t RefType) *TypeFun {
	ty, err := p.GetType(t)
	if err != nil {
		return nil
	}
	sig, _ := ty.Signature()
	return sig
}
