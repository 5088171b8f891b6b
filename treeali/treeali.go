/*
Treeali samples from the joint posterior distribution of a
phylogenetic tree and a multiple sequence alignment by Markov-chain
Monte Carlo. The state is a tuple of tree topology with branch
lengths, alignment, substitution-model parameters and indel-model
parameters.

The basic usage looks like this:

	treeali alignment.fst tree.nwk

This runs the sampler with the HKY substitution model and the default
indel model. To sample with a fixed alignment (no indel modelling):

	treeali --traditional alignment.fst tree.nwk

To see all the options run:

	treeali -h
*/
package main

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"

	"bitbucket.org/Davydov/treeali/align"
	"bitbucket.org/Davydov/treeali/bio"
	"bitbucket.org/Davydov/treeali/imodel"
	"bitbucket.org/Davydov/treeali/optimize"
	"bitbucket.org/Davydov/treeali/pmodel"
	"bitbucket.org/Davydov/treeali/smodel"
	"bitbucket.org/Davydov/treeali/trace"
	"bitbucket.org/Davydov/treeali/tree"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("treeali")
var formatter = logging.MustStringFormatter(`%{message}`)

// command-line options
var (
	app = kingpin.New("treeali", "joint sampler of phylogenies and alignments").Version(version)

	// input
	alignmentFileNames = app.Arg("alignment", "sequence alignment (one per partition)").Required().ExistingFiles()
	treeFileName       = app.Flag("tree", "starting phylogenetic tree").Required().ExistingFile()

	// model
	smodelName = app.Flag("smodel", "substitution model (JC, HKY or GTR)").Default("HKY").Enum("JC", "HKY", "GTR")
	ncat       = app.Flag("ncat", "number of discrete gamma rate classes").Default("1").Int()
	rateAlpha  = app.Flag("alpha", "gamma rate shape (with --ncat > 1)").Default("1").Float64()

	traditional = app.Flag("traditional", "disable all indel modelling (fixed alignment)").Bool()
	subAIndex   = app.Flag("subA-index", "sub-alignment index flavour (leaf or internal)").Default("leaf").Enum("leaf", "internal")
	letters     = app.Flag("letters", "star collapses internal branch lengths (star-tree substitution)").Default("").String()
	branchPrior = app.Flag("branch-prior", "branch length prior (Exponential or Gamma)").Default("Exponential").Enum("Exponential", "Gamma")
	sameScale   = app.Flag("same-scale", "comma-separated partition numbers sharing a branch-length scale").Default("").String()

	// constraints
	tConstraintF = app.Flag("t-constraint", "constraint tree file").String()
	aConstraintF = app.Flag("a-constraint", "alignment-branch constraint file").String()

	// sampling
	iterations = app.Flag("iterations", "number of iterations").Default("10000").Int()
	subsample  = app.Flag("subsample", "emit logs every N iterations").Default("10").Int()
	seed       = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()
	beta       = app.Flag("beta", "heating exponent of the likelihood").Default("1").Float64()
	dbeta      = app.Flag("dbeta", "per-chain heating increment").Default("0").Float64()
	chainID    = app.Flag("chain", "chain index for the heating schedule").Default("0").Int()
	enable     = app.Flag("enable", "comma-separated move names or attributes to enable").String()
	disable    = app.Flag("disable", "comma-separated move names or attributes to disable").String()

	// parameter control
	fixPars   = app.Flag("fix", "comma-separated parameter names to fix").String()
	unfixPars = app.Flag("unfix", "comma-separated parameter names to unfix").String()
	setPars   = app.Flag("set", "comma-separated name=value parameter assignments").String()

	// pre-optimization
	preopt = app.Flag("preopt", "LBFGS-B iterations of parameter pre-optimization before sampling").Default("0").Int()

	// input/output
	outDir   = app.Flag("name", "output directory").Default("treeali-1").String()
	outLogF  = app.Flag("log", "write log to a file").String()
	traceF   = app.Flag("trace", "write best-state snapshots to a bolt database").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
)

// loadAlignments reads and encodes the input alignments.
func loadAlignments(alpha *bio.Alphabet) []*align.Alignment {
	var res []*align.Alignment
	for _, fn := range *alignmentFileNames {
		f, err := os.Open(fn)
		if err != nil {
			log.Fatal(err)
		}
		seqs, err := bio.ParseSequences(f)
		f.Close()
		if err != nil {
			log.Fatalf("%s: %v", fn, err)
		}
		a, err := align.New(alpha, seqs)
		if err != nil {
			log.Fatalf("%s: %v", fn, err)
		}
		res = append(res, a)
	}
	return res
}

// loadTree reads and unroots the starting tree.
func loadTree(fn string) *tree.Tree {
	f, err := os.Open(fn)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	t, err := tree.ParseTree(f)
	if err != nil {
		log.Fatalf("%s: %v", fn, err)
	}
	return t
}

// reorderRows permutes alignment rows so row i belongs to leaf i.
func reorderRows(a *align.Alignment, t *tree.Tree) *align.Alignment {
	name2row := make(map[string]int, a.NRows())
	for i := 0; i < a.NRows(); i++ {
		name2row[a.Name(i)] = i
	}
	seqs := make(bio.Sequences, t.NLeaves())
	for n := 0; n < t.NLeaves(); n++ {
		i, ok := name2row[t.LeafName(n)]
		if !ok {
			log.Fatalf("no sequence found for the leaf <%s>", t.LeafName(n))
		}
		seqs[n] = bio.Sequence{Name: a.Name(i), Sequence: a.Alpha.Decode(a.Row(i))}
	}
	res, err := align.New(a.Alpha, seqs)
	if err != nil {
		log.Fatal(err)
	}
	return res
}

// loadAConstraints reads the alignment-branch constraint file: one
// whitespace-separated list of leaf names per line.
func loadAConstraints(fn string, t *tree.Tree) []tree.LeafSet {
	f, err := os.Open(fn)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	idx := make(map[string]int, t.NLeaves())
	for i := 0; i < t.NLeaves(); i++ {
		idx[t.LeafName(i)] = i
	}
	var res []tree.LeafSet
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		set := make(tree.LeafSet, t.NLeaves())
		for _, name := range fields {
			i, ok := idx[name]
			if !ok {
				log.Fatalf("constraint leaf %q not in tree", name)
			}
			set[i] = true
		}
		res = append(res, set)
	}
	return res
}

// applyParameterFlags processes --fix, --unfix and --set.
func applyParameterFlags(s *pmodel.State) {
	pars := s.Parameters()
	apply := func(list string, f func(par optimize.FloatParameter)) {
		if list == "" {
			return
		}
		for _, pattern := range strings.Split(list, ",") {
			indices := pars.WithExtension(pattern)
			if len(indices) == 0 {
				log.Fatalf("unknown parameter name %q", pattern)
			}
			for _, i := range indices {
				f((*pars)[i])
			}
		}
	}
	apply(*fixPars, func(p optimize.FloatParameter) { p.SetFixed(true) })
	apply(*unfixPars, func(p optimize.FloatParameter) { p.SetFixed(false) })
	if *setPars != "" {
		for _, assignment := range strings.Split(*setPars, ",") {
			kv := strings.SplitN(assignment, "=", 2)
			if len(kv) != 2 {
				log.Fatalf("malformed --set %q", assignment)
			}
			v, err := strconv.ParseFloat(kv[1], 64)
			if err != nil {
				log.Fatalf("malformed --set value %q", kv[1])
			}
			indices := pars.WithExtension(kv[0])
			if len(indices) == 0 {
				log.Fatalf("unknown parameter name %q", kv[0])
			}
			for _, i := range indices {
				(*pars)[i].Set(v)
			}
		}
	}
}

// scaleGroups parses the --same-scale grouping.
func scaleGroups(nParts int) (int, []int) {
	groups := make([]int, nParts)
	for i := range groups {
		groups[i] = i
	}
	if *sameScale != "" {
		var members []int
		for _, f := range strings.Split(*sameScale, ",") {
			i, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil || i < 1 || i > nParts {
				log.Fatalf("malformed --same-scale entry %q", f)
			}
			members = append(members, i-1)
		}
		for _, i := range members[1:] {
			groups[i] = groups[members[0]]
		}
	}
	// renumber densely
	remap := map[int]int{}
	n := 0
	for i, g := range groups {
		if _, ok := remap[g]; !ok {
			remap[g] = n
			n++
		}
		groups[i] = remap[g]
	}
	return n, groups
}

// sinks bundles the per-chain output streams.
type sinks struct {
	out, trees, p, mapF *os.File
	fastas              []*os.File
}

func openSinks(nParts int) *sinks {
	if err := os.MkdirAll(*outDir, 0777); err != nil {
		log.Fatal(err)
	}
	open := func(name string) *os.File {
		f, err := os.Create(filepath.Join(*outDir, name))
		if err != nil {
			log.Fatal(err)
		}
		return f
	}
	s := &sinks{
		out:   open("out"),
		trees: open("trees"),
		p:     open("p"),
		mapF:  open("MAP"),
	}
	for k := 0; k < nParts; k++ {
		s.fastas = append(s.fastas, open(fmt.Sprintf("P%d.fastas", k+1)))
	}
	return s
}

func (s *sinks) close() {
	s.out.Close()
	s.trees.Close()
	s.p.Close()
	s.mapF.Close()
	for _, f := range s.fastas {
		f.Close()
	}
}

func run() {
	startTime := time.Now()

	t := loadTree(*treeFileName)
	if !t.IsResolved() {
		log.Fatal("the starting tree must be fully resolved")
	}
	log.Infof("intree_unroot=%s", t)

	alpha := bio.DNA()
	alignments := loadAlignments(alpha)
	for k, a := range alignments {
		alignments[k] = reorderRows(a, t)
		log.Infof("Read alignment %d: %d columns, %d sequences",
			k+1, a.NCols(), a.NRows())
	}

	var sms []smodel.Model
	for range alignments {
		var sm smodel.Model
		switch *smodelName {
		case "JC":
			sm = smodel.NewJC(alpha)
		case "GTR":
			sm = smodel.NewGTR(alpha)
		default:
			sm = smodel.NewHKY(alpha)
		}
		sms = append(sms, sm)
	}
	log.Infof("Using %s substitution model", *smodelName)

	// observed frequencies
	for k, a := range alignments {
		rows := make([][]int, a.NRows())
		for i := range rows {
			rows[i] = a.Row(i)
		}
		freq := smodel.ObservedFrequencies(alpha, rows)
		switch sm := sms[k].(type) {
		case *smodel.HKY:
			sm.SetFrequencies(freq)
		case *smodel.GTR:
			sm.SetFrequencies(freq)
		}
	}

	var ims []*imodel.Model
	if !*traditional {
		for range alignments {
			ims = append(ims, imodel.New())
		}
		log.Info("Indel model enabled")
	} else {
		log.Info("Indel modelling disabled (--traditional)")
	}

	nGroups, groups := scaleGroups(len(alignments))

	var bp pmodel.BranchPriorType
	if *branchPrior == "Gamma" {
		bp = pmodel.BranchPriorGamma
	}

	s, err := pmodel.New(t, alignments, sms, ims, pmodel.Config{
		InternalIndex: *subAIndex == "internal",
		BranchPrior:   bp,
		Traditional:   *traditional,
		NRates:        *ncat,
		RateAlpha:     *rateAlpha,
		NScaleGroups:  nGroups,
		ScaleGroup:    groups,
	})
	if err != nil {
		log.Fatal(err)
	}

	if *letters == "star" {
		log.Info("Star-tree substitution: internal branch lengths set to 0")
		for b := t.NLeaves(); b < t.NBranches(); b++ {
			t.SetLength(b, 0)
		}
	}

	if *tConstraintF != "" {
		s.ConstraintTree = loadTree(*tConstraintF)
		if !tree.Extends(t, s.ConstraintTree) {
			log.Fatal("starting tree does not satisfy the constraint tree")
		}
	}
	if *aConstraintF != "" {
		s.AConstraints = loadAConstraints(*aConstraintF, t)
		sat := s.ConstraintSatisfied()
		n := 0
		for _, ok := range sat {
			if ok {
				n++
			}
		}
		log.Infof("Using %d alignment constraints, %d satisfied by the start state",
			len(sat), n)
		if n != len(sat) {
			log.Fatal("the starting alignment violates a constraint")
		}
	}

	s.SetBeta(*beta + *dbeta*float64(*chainID))
	applyParameterFlags(s)
	log.Infof("Model has %d parameters", len(*s.Parameters()))

	if *preopt > 0 {
		log.Infof("Pre-optimizing parameters for %d iterations", *preopt)
		opt := optimize.NewLBFGSB()
		opt.SetOptimizable(pmodel.Posterior{State: s})
		opt.SetOutput(os.Stderr)
		opt.SetReportPeriod(10)
		opt.WatchSignals(os.Interrupt)
		opt.Run(*preopt)
	}

	var enableList, disableList []string
	if *enable != "" {
		enableList = strings.Split(*enable, ",")
	}
	if *disable != "" {
		disableList = strings.Split(*disable, ",")
	}

	sampler := buildSampler(s, !*traditional, *letters == "star", enableList, disableList)
	sampler.WatchSignals()

	out := openSinks(len(s.Parts))
	defer out.close()

	sampler.ShowEnabled(out.out, 0)
	fmt.Fprintf(out.p, "iter\tposterior\tprior\tlikelihood\t%s\n", s.Parameters().NamesString())

	var traceIO *trace.IO
	if *traceF != "" {
		db, err := bolt.Open(*traceF, 0666, nil)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
		traceIO = trace.NewIO(db, []byte("MAP"), 30)
	}

	bestPosterior := 0.0
	first := true

	report := func(iter int) {
		prior := s.LogPrior()
		lik := s.Likelihood()
		posterior := prior + lik

		fmt.Fprintf(out.out, "iterations = %d\n", iter)
		fmt.Fprintf(out.out, "    prior = %f    likelihood = %f    posterior = %f\n",
			prior, lik, posterior)
		fmt.Fprintf(out.trees, "%s\n", s.T)
		fmt.Fprintf(out.p, "%d\t%f\t%f\t%f\t%s\n", iter, posterior, prior, lik,
			s.Parameters().ValuesString())
		for k, p := range s.Parts {
			fmt.Fprintf(out.fastas[k], "iterations = %d\n\n%s\n", iter, p.A.Fasta(t.NLeaves()))
		}

		if first || posterior > bestPosterior {
			first = false
			bestPosterior = posterior
			out.mapF.Truncate(0)
			out.mapF.Seek(0, 0)
			fmt.Fprintf(out.mapF, "iterations = %d\nposterior = %f\n%s\n", iter, posterior, s.T)
			for _, p := range s.Parts {
				fmt.Fprintf(out.mapF, "\n%s\n", p.A.Fasta(t.NLeaves()))
			}
			if traceIO != nil && traceIO.Old() {
				pars := make(map[string]float64)
				for _, par := range *s.Parameters() {
					pars[par.Name()] = par.Get()
				}
				traceIO.Save(&trace.Snapshot{
					Parameters:   pars,
					LogPosterior: posterior,
					Tree:         s.T.String(),
					Iter:         iter,
				})
			}
		}
	}

	done := sampler.Go(s, *subsample, *iterations, report)
	log.Noticef("Finished after %d iterations", done)

	if err := s.Check(); err != nil {
		log.Errorf("Invariant violation in the final state: %v", err)
		os.Exit(1)
	}

	fmt.Fprintf(out.out, "\nMove statistics:\n%s", sampler.Stats.Summary())
	log.Noticef("Running time: %v", time.Since(startTime))
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	for _, pkg := range []string{"treeali", "align", "suba", "lik", "hmm",
		"imodel", "smodel", "pmodel", "sample", "mcmc", "optimize", "trace"} {
		logging.SetLevel(level, pkg)
	}

	// print revision
	log.Info(version)
	log.Info("Command line:", os.Args)

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)
	rand.Seed(*seed)

	run()
}
