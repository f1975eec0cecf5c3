package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Jon-Bright/clkctl/clk"
	"github.com/Jon-Bright/clkctl/dtclk"
	"github.com/Jon-Bright/clkctl/lpass"
	"github.com/Jon-Bright/clkctl/regmap"
	"github.com/Jon-Bright/clkctl/sim"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var compatibleName = flag.String("compatible", "qcom,lpassaudiocc-khaje", "The device tree compatible string of the clock controller to drive")
var dtbPath = flag.String("dtb", "", "A flattened device tree to read external clock rates and the register window from")
var regAddr = flag.Uint64("addr", 0, "The physical address of the clock controller's registers. Overrides the device tree.")
var regSize = flag.Uint64("size", 0, "The size of the register window in bytes. 0 means just enough for the controller's registers.")
var simulate = flag.Bool("sim", false, "Drive a simulated register block instead of hardware")
var disableUnused = flag.Bool("disableUnused", false, "At startup, switch off clocks firmware left running that nobody has asked for")
var port = flag.Int("port", 24602, "The port that the server should listen to")
var metricsPort = flag.Int("metricsPort", 9602, "The port to serve Prometheus metrics on. 0 disables metrics.")
var pollTimeout = flag.Duration("pollTimeout", clk.DEFAULT_POLL_TIMEOUT, "How long to wait for an RCG to take a new configuration")
var lockTimeout = flag.Duration("lockTimeout", clk.DEFAULT_LOCK_TIMEOUT, "How long to wait for a PLL to lock")
var haltTimeout = flag.Duration("haltTimeout", clk.DEFAULT_HALT_TIMEOUT, "How long to wait for a branch to report its new state")

type Server struct {
	c *clk.Controller
	l net.Listener
}

func NewServer(port int, c *clk.Controller) (*Server, error) {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	log.Printf("Listening on port %d", port)
	return &Server{c, l}, nil
}

func (s *Server) clock(name string) (clk.ID, error) {
	if name == "" {
		return -1, fmt.Errorf("missing clock name")
	}
	return s.c.Lookup(name)
}

// parseRate splits "<clock> <hz>" into its parts.
func (s *Server) parseRate(parms string) (clk.ID, uint64, bool, error) {
	t := strings.Fields(parms)
	if len(t) == 0 || len(t) > 2 {
		return -1, 0, false, fmt.Errorf("want a clock and optionally a rate, got '%s'", parms)
	}
	id, err := s.clock(t[0])
	if err != nil {
		return -1, 0, false, err
	}
	if len(t) == 1 {
		return id, 0, false, nil
	}
	hz, err := strconv.ParseUint(t[1], 10, 64)
	if err != nil {
		return -1, 0, false, fmt.Errorf("error parsing rate: %v", err)
	}
	return id, hz, true, nil
}

// execute runs one command. The returned string is appended to the OK reply; commands with
// more to say write their own lines to w first.
func (s *Server) execute(cmd, parms string, w *bufio.Writer) (string, error) {
	switch cmd {
	case "ENABLE":
		id, err := s.clock(parms)
		if err != nil {
			return "", err
		}
		return "", s.c.Enable(id)
	case "DISABLE":
		id, err := s.clock(parms)
		if err != nil {
			return "", err
		}
		return "", s.c.Disable(id)
	case "RATE":
		id, hz, set, err := s.parseRate(parms)
		if err != nil {
			return "", err
		}
		if !set {
			r, err := s.c.Rate(id)
			return strconv.FormatUint(r, 10), err
		}
		r, err := s.c.SetRate(id, hz)
		return strconv.FormatUint(r, 10), err
	case "ROUND":
		id, hz, set, err := s.parseRate(parms)
		if err != nil {
			return "", err
		}
		if !set {
			return "", fmt.Errorf("ROUND needs a rate")
		}
		r, err := s.c.RoundRate(id, hz)
		return strconv.FormatUint(r, 10), err
	case "PARENT":
		id, err := s.clock(parms)
		if err != nil {
			return "", err
		}
		i, err := s.c.Info(id)
		if err != nil {
			return "", err
		}
		if i.Parent == "" {
			return "-", nil
		}
		return i.Parent, nil
	case "RESET":
		t := strings.Fields(parms)
		if len(t) == 0 || len(t) > 2 {
			return "", fmt.Errorf("want a reset and optionally ASSERT or DEASSERT, got '%s'", parms)
		}
		if len(t) == 1 {
			return "", s.c.Reset(t[0])
		}
		switch strings.ToUpper(t[1]) {
		case "ASSERT":
			return "", s.c.AssertReset(t[0])
		case "DEASSERT":
			return "", s.c.DeassertReset(t[0])
		case "STATUS":
			on, err := s.c.Asserted(t[0])
			if on {
				return "1", err
			}
			return "0", err
		}
		return "", fmt.Errorf("unknown reset action: %s", t[1])
	case "ACTIVATE":
		return "", s.c.Activate()
	case "DEACTIVATE":
		return "", s.c.Deactivate()
	case "CORNER":
		v, err := s.c.VddClass(parms)
		if err != nil {
			return "", err
		}
		return v.Corner().String(), nil
	case "SUMMARY":
		for _, i := range s.c.Summary() {
			parent := i.Parent
			if parent == "" {
				parent = "-"
			}
			fmt.Fprintf(w, "%s %v %d %d %s %v\n", i.Name, i.Kind, i.Rate, i.Count, parent, i.Corner)
		}
		return "", nil
	}
	return "", fmt.Errorf("unknown command: %s", cmd)
}

func (s *Server) handleConnection(c net.Conn) {
	log.Printf("Handling connection from %v", c.RemoteAddr())
	defer c.Close()
	r := bufio.NewReader(c)
	w := bufio.NewWriter(c)
	for {
		l, err := r.ReadString('\n')
		if err == io.EOF {
			log.Printf("EOF for connection %v", c.RemoteAddr())
			return
		}
		if err != nil {
			log.Printf("Error reading string for connection %v: %v", c.RemoteAddr(), err)
			return
		}
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		log.Printf("Got line '%s'", l)
		t := strings.SplitN(l, " ", 2)
		cmd := strings.ToUpper(t[0])
		parms := ""
		if len(t) > 1 {
			parms = strings.TrimSpace(t[1])
		}
		if cmd == "QUIT" {
			return
		}
		res, err := s.execute(cmd, parms, w)
		if err != nil {
			es := fmt.Sprintf("%s failed: %v", cmd, err)
			log.Print(es)
			w.WriteString("ERR: " + es + "\n")
		} else if res != "" {
			w.WriteString("OK " + res + "\n")
		} else {
			w.WriteString("OK\n")
		}
		if err := w.Flush(); err != nil {
			log.Printf("error writing reply: %v", err)
			return
		}
	}
}

func (s *Server) handleConnections() {
	for {
		conn, err := s.l.Accept()
		if err != nil {
			log.Printf("Error accepting connection: %v", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Printf("Serving metrics on port %d", port)
	err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
	log.Fatalf("Metrics server failed: %v", err)
}

// openRegisters returns the controller's register block and the external rates to use.
func openRegisters(v *lpass.Variant) (*regmap.Region, map[string]uint64, error) {
	externals := make(map[string]uint64)
	for n, r := range v.Externals {
		externals[n] = r
	}
	if *simulate {
		s := sim.New(v.Topology, v.Defaults)
		return s.Regs, externals, nil
	}
	win := dtclk.Window{Base: *regAddr, Size: *regSize}
	if *dtbPath != "" {
		fdt, err := dtclk.ReadFile(*dtbPath)
		if err != nil {
			return nil, nil, err
		}
		ext, err := dtclk.Externals(fdt)
		if err != nil {
			return nil, nil, err
		}
		for n, r := range ext {
			externals[n] = r
		}
		if win.Base == 0 {
			w, err := dtclk.Controller(fdt, v.Compatible)
			if err != nil {
				return nil, nil, err
			}
			win.Base = w.Base
			if win.Size == 0 {
				win.Size = w.Size
			}
		}
	}
	if win.Base == 0 {
		return nil, nil, fmt.Errorf("no register address for %s: use -dtb or -addr", v.Compatible)
	}
	if need := uint64(v.Topology.MaxRegister) + 4; win.Size < need {
		win.Size = need
	}
	mm, err := regmap.MapMMIO(uintptr(win.Base), int(win.Size))
	if err != nil {
		return nil, nil, err
	}
	return regmap.NewRegion(v.Topology.Name, mm, v.Topology.MaxRegister), externals, nil
}

func main() {
	flag.Parse()
	v, err := lpass.Lookup(*compatibleName)
	if err != nil {
		log.Fatalf("%v (supported: %s)", err, strings.Join(lpass.Compatibles(), ", "))
	}
	regs, externals, err := openRegisters(v)
	if err != nil {
		log.Fatalf("Failed opening registers: %v", err)
	}
	power, rails, err := initPower(v.Topology)
	if err != nil {
		log.Fatalf("Failed setting up power: %v", err)
	}
	c, err := clk.New(regs, v.Topology, clk.Config{
		Externals:   externals,
		Power:       power,
		Rails:       rails,
		PollTimeout: *pollTimeout,
		LockTimeout: *lockTimeout,
		HaltTimeout: *haltTimeout,
	})
	if err != nil {
		log.Fatalf("Failed creating clock controller: %v", err)
	}
	if *disableUnused {
		if err := c.Activate(); err != nil {
			log.Fatalf("Failed power-on: %v", err)
		}
		n, err := c.DisableUnused()
		if err != nil {
			log.Printf("Disabling unused clocks: %v", err)
		}
		log.Printf("Disabled %d unused clocks", n)
		c.Deactivate() // Ignore error
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		if err := c.Close(); err != nil {
			log.Printf("Failed shutting down cleanly: %v", err)
		}
		os.Exit(0)
	}()

	if *metricsPort != 0 {
		go serveMetrics(*metricsPort)
	}
	s, err := NewServer(*port, c)
	if err != nil {
		log.Fatalf("Failed creating server: %v", err)
	}
	s.handleConnections()
}
