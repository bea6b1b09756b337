package extract

import "sort"

// Processor renders one dataset into a JSON file under outputDir and
// returns the path it wrote.
type Processor func(l *Loader, ctx *Context, outputDir string) (string, error)

var processors = map[string]Processor{
	"items":    Items,
	"monsters": Monsters,
	"skills":   Skills,
	"classes":  Classes,
	"buffs":    Buffs,
	"rewards":  Rewards,
}

// Datasets lists the registered dataset names in sorted order.
func Datasets() []string {
	names := make([]string, 0, len(processors))
	for name := range processors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the processor registered under name.
func Lookup(name string) (Processor, bool) {
	p, ok := processors[name]
	return p, ok
}
