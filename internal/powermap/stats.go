package powermap

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// GridStatistics summarises the newly built, non-native part of the grid.
type GridStatistics struct {
	CableLength map[Size]int
	PDUs        map[Size]int
}

// TotalCableLength in metres.
func (s GridStatistics) TotalCableLength() int {
	total := 0
	for _, l := range s.CableLength {
		total += l
	}
	return total
}

// TotalPDUs over all sizes.
func (s GridStatistics) TotalPDUs() int {
	total := 0
	for _, n := range s.PDUs {
		total += n
	}
	return total
}

func (g *Grid) Statistics() GridStatistics {
	s := GridStatistics{CableLength: map[Size]int{}, PDUs: map[Size]int{}}
	for _, p := range g.PDUs {
		if !p.Native {
			s.PDUs[p.Size]++
		}
	}
	for _, c := range g.Cables {
		if !c.Native {
			s.CableLength[c.Size] += c.LengthM()
		}
	}
	return s
}

// WriteStatistics prints cable lengths and PDU counts per size.
func (g *Grid) WriteStatistics(w io.Writer) {
	s := g.Statistics()
	p := message.NewPrinter(language.English)
	p.Fprintln(w, "Cable lines:")
	for _, size := range Sizes {
		if l, ok := s.CableLength[size]; ok {
			p.Fprintf(w, "  %3s: %dm\n", size, l)
		}
	}
	p.Fprintf(w, "Total cable length: %dm\n", s.TotalCableLength())
	p.Fprintln(w, "PDUs:")
	for _, size := range Sizes {
		if n, ok := s.PDUs[size]; ok {
			p.Fprintf(w, "  PDU %s: %d\n", size, n)
		}
	}
	p.Fprintf(w, "Total: %d\n", s.TotalPDUs())
}

// WriteAreaTable prints the item counts of every area as an indented table.
func (g *Grid) WriteAreaTable(w io.Writer) {
	fmt.Fprintln(w, "Area            | PDUs  | Cables| Users |")
	g.writeAreaRows(w, 0, 0)
}

func (g *Grid) writeAreaRows(w io.Writer, i, level int) {
	a := g.Areas[i]
	name := strings.Repeat("  ", level) + a.Name
	fmt.Fprintf(w, "%-15s | %5d | %5d | %5d\n", name, len(a.PDUs), len(a.Cables), len(a.Consumers))
	for _, ci := range a.Children {
		g.writeAreaRows(w, ci, level+1)
	}
}
