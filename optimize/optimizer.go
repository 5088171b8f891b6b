package optimize

import (
	"fmt"
	"io"
	"os"
	"os/signal"
)

// Optimizable is a model whose likelihood can be maximized over its
// FloatParameters.
type Optimizable interface {
	GetFloatParameters() FloatParameters
	Likelihood() float64
	Copy() Optimizable
}

// Optimizer maximizes the likelihood of an Optimizable.
type Optimizer interface {
	SetOptimizable(Optimizable)
	WatchSignals(...os.Signal)
	SetReportPeriod(period int)
	SetOutput(io.Writer)
	Run(iterations int)
	GetMaxL() float64
	GetMaxLParameters() []float64
}

// BaseOptimizer implements the common parts of optimizers.
type BaseOptimizer struct {
	Optimizable
	parameters FloatParameters
	i          int
	maxL       float64
	maxLPar    []float64
	repPeriod  int
	output     io.Writer
	sig        chan os.Signal
	Quiet      bool
}

// SetOptimizable sets the model to optimize.
func (o *BaseOptimizer) SetOptimizable(opt Optimizable) {
	o.Optimizable = opt
	o.parameters = opt.GetFloatParameters()
}

// WatchSignals installs signal handlers interrupting optimization.
func (o *BaseOptimizer) WatchSignals(sigs ...os.Signal) {
	o.sig = make(chan os.Signal, 1)
	signal.Notify(o.sig, sigs...)
}

// SetReportPeriod sets the number of iterations between reports.
func (o *BaseOptimizer) SetReportPeriod(period int) {
	o.repPeriod = period
}

// SetOutput sets the trajectory output writer.
func (o *BaseOptimizer) SetOutput(w io.Writer) {
	o.output = w
}

// PrintHeader prints the trajectory header.
func (o *BaseOptimizer) PrintHeader() {
	if !o.Quiet && o.output != nil {
		fmt.Fprintf(o.output, "iteration\tlikelihood\t%s\n", o.parameters.NamesString())
	}
}

// PrintLine prints one trajectory line.
func (o *BaseOptimizer) PrintLine(l float64) {
	if !o.Quiet && o.output != nil {
		fmt.Fprintf(o.output, "%d\t%f\t%s\n", o.i, l, o.parameters.ValuesString())
	}
}

// PrintFinal logs the optimization outcome.
func (o *BaseOptimizer) PrintFinal() {
	if !o.Quiet {
		for i, par := range o.parameters {
			v := par.Get()
			if o.maxLPar != nil {
				v = o.maxLPar[i]
			}
			log.Noticef("%s=%v", par.Name(), v)
		}
	}
}

// GetMaxL returns the best likelihood seen.
func (o *BaseOptimizer) GetMaxL() float64 {
	return o.maxL
}

// GetMaxLParameters returns the best parameter values seen.
func (o *BaseOptimizer) GetMaxLParameters() []float64 {
	return o.maxLPar
}
