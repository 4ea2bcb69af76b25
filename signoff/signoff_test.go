package signoff_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/serdeslab/linksim/link"
	"github.com/serdeslab/linksim/signoff"
	"github.com/serdeslab/linksim/touchstone"
)

// sixInchChannel is the synthetic 6-inch stripline, 22.56 dB down at the
// 32 GHz Nyquist frequency.
func sixInchChannel() *link.ChannelResponse {
	ch, err := touchstone.Synthetic(6, 500).DifferentialSDD21()
	Expect(err).ToNot(HaveOccurred())
	return ch
}

var _ = Describe("Builder", func() {
	It("rejects a scenario without a channel", func() {
		_, err := signoff.MakeBuilder().Build()

		var dataErr *link.DataError
		Expect(err).To(HaveOccurred())
		Expect(errors.As(err, &dataErr)).To(BeTrue())
	})

	It("rejects a non-positive transmit swing", func() {
		_, err := signoff.MakeBuilder().
			WithChannel(sixInchChannel()).
			WithVppMV(0).
			Build()

		var cfgErr *link.ConfigError
		Expect(errors.As(err, &cfgErr)).To(BeTrue())
	})

	It("rejects a declared Nyquist loss far from the channel", func() {
		_, err := signoff.MakeBuilder().
			WithChannel(sixInchChannel()).
			WithArchInput(link.ArchInput{NyquistLossDB: -40}).
			Build()

		var dataErr *link.DataError
		Expect(errors.As(err, &dataErr)).To(BeTrue())
	})

	It("accepts a declared Nyquist loss within tolerance", func() {
		r, err := signoff.MakeBuilder().
			WithChannel(sixInchChannel()).
			WithArchInput(link.ArchInput{NyquistLossDB: -22}).
			Build()

		Expect(err).ToNot(HaveOccurred())
		Expect(r.ID()).ToNot(BeEmpty())
	})
})

var _ = Describe("Sign-off run", Ordered, func() {
	var res *signoff.Result

	BeforeAll(func() {
		r, err := signoff.MakeBuilder().
			WithChannel(sixInchChannel()).
			Build()
		Expect(err).ToNot(HaveOccurred())

		res, err = r.RunNominal()
		Expect(err).ToNot(HaveOccurred())
	})

	It("measures the calibrated Nyquist loss", func() {
		Expect(res.NyquistLossDB).To(BeNumerically("~", -22.56, 0.1))
	})

	It("produces all seven ledger stages in order", func() {
		Expect(res.Waterfall.Stages).To(HaveLen(int(link.NumStages)))
		for i, s := range res.Waterfall.Stages {
			Expect(s.Stage).To(Equal(link.Stage(i)))
		}
	})

	It("leaves the unequalized link underwater", func() {
		raw := res.Waterfall.Stages[link.StageRawLink]
		Expect(raw.VerticalMV).To(BeNumerically("<", 0))
	})

	It("recovers a non-negative final margin from the last stage", func() {
		last := res.Waterfall.Stages[len(res.Waterfall.Stages)-1]
		Expect(res.Waterfall.FinalVerticalMV).To(Equal(last.VerticalMV))
		Expect(res.Waterfall.FinalVerticalMV).To(BeNumerically(">=", 0))
	})

	It("accumulates power monotonically along the ledger", func() {
		prev := 0.0
		for _, s := range res.Waterfall.Stages {
			Expect(s.PowerMW).To(BeNumerically(">=", prev))
			prev = s.PowerMW
		}
		Expect(res.Waterfall.TotalPowerMW).To(
			BeNumerically("~", res.Cost.TotalMW, 1e-9))
	})

	It("tracks phase and leaves the pipelined horizontal margin", func() {
		cdrStage := res.Waterfall.Stages[link.StageCDR]
		Expect(cdrStage.HorizontalUI).To(BeNumerically("~", 0.279, 0.001))
		Expect(res.Waterfall.FinalHorizontalUI).To(Equal(cdrStage.HorizontalUI))
	})

	It("settles the junction above ambient", func() {
		Expect(res.Thermal.Converged).To(BeTrue())
		Expect(res.Thermal.JunctionC).To(BeNumerically(">", 45))
		Expect(res.Waterfall.JunctionC).To(Equal(res.Thermal.JunctionC))
	})

	It("keeps the optimized taps on the configured lattice", func() {
		quant := link.TapQuant{Min: -0.3, Max: 0.3, Bits: 6}
		for _, tap := range res.Optimizer.Config.FFETaps {
			Expect(quant.Representable(tap)).To(BeTrue())
		}
	})

	It("attributes losses with an explicit unattributed residual", func() {
		sum := res.Waterfall.UnattributedPercent
		for _, a := range res.Waterfall.Attribution {
			sum += a.Percent
		}
		Expect(sum).To(BeNumerically("~", 100, 1e-6))
		Expect(res.Waterfall.UnattributedPercent).To(BeNumerically(">", 0))
	})

	It("flattens into the fifteen-scalar prediction", func() {
		p := res.Prediction()
		s := p.Scalars()

		Expect(s[int(link.StageCDR)]).To(
			Equal(res.Waterfall.Stages[link.StageCDR].VerticalMV))
		Expect(s[int(link.StageCDR)+int(link.NumStages)]).To(
			Equal(res.Waterfall.Stages[link.StageCDR].HorizontalUI))
		Expect(s[14]).To(Equal(res.Thermal.JunctionC))
	})

	It("scans a physically plausible eye", func() {
		Expect(res.Eye.HorizontalUI).To(BeNumerically(">=", 0))
		Expect(res.Eye.HorizontalUI).To(BeNumerically("<=", 2))
	})
})

var _ = Describe("Latency architecture tradeoff", Ordered, func() {
	var std, spec *signoff.Result

	BeforeAll(func() {
		build := func(arch link.LatencyArch) *signoff.Result {
			r, err := signoff.MakeBuilder().
				WithChannel(sixInchChannel()).
				WithLatencyArch(arch).
				Build()
			Expect(err).ToNot(HaveOccurred())

			res, err := r.RunNominal()
			Expect(err).ToNot(HaveOccurred())
			return res
		}

		std = build(link.LatencyStandard)
		spec = build(link.LatencySpeculative)
	})

	It("buys horizontal margin with the unrolled loop", func() {
		Expect(std.Waterfall.FinalHorizontalUI).To(BeNumerically("~", 0.279, 0.001))
		Expect(spec.Waterfall.FinalHorizontalUI).To(BeNumerically(">", 0.450))
	})

	It("pays for the unroll in CDR power", func() {
		Expect(std.Cost.CDRMW()).To(BeNumerically("~", 7.2, 1e-9))
		Expect(spec.Cost.CDRMW()).To(BeNumerically("~", 28.1, 1e-9))
		Expect(spec.Cost.TotalMW).To(BeNumerically(">", std.Cost.TotalMW))
	})
})

var _ = Describe("DFE tap-one limit", func() {
	It("penalizes instead of clipping an overdriven tap", func() {
		nominalRunner, err := signoff.MakeBuilder().
			WithChannel(sixInchChannel()).
			Build()
		Expect(err).ToNot(HaveOccurred())
		nominal, err := nominalRunner.RunNominal()
		Expect(err).ToNot(HaveOccurred())

		sc := signoff.DefaultScenario()
		sc.Channel = sixInchChannel()
		sc.Equalizer.DFETapsMV[0] = 40

		r, err := signoff.MakeBuilder().WithScenario(sc).Build()
		Expect(err).ToNot(HaveOccurred())
		res, err := r.RunNominal()
		Expect(err).ToNot(HaveOccurred())

		Expect(res.Waterfall.Penalties).To(HaveLen(1))
		Expect(res.Waterfall.Penalties[0].Param).To(Equal("dfe_tap1_mv"))
		Expect(res.Waterfall.Penalties[0].PenaltyMV()).To(
			BeNumerically("~", 20, 1e-9))

		Expect(res.Waterfall.FinalVerticalMV).To(
			BeNumerically("<", nominal.Waterfall.FinalVerticalMV))
		Expect(res.Thermal.JunctionC).To(
			BeNumerically(">", nominal.Thermal.JunctionC))
	})
})

var _ = Describe("Perturbed runs", Ordered, func() {
	var runner *signoff.Runner
	var nominal *signoff.Result

	BeforeAll(func() {
		var err error
		runner, err = signoff.MakeBuilder().
			WithChannel(sixInchChannel()).
			Build()
		Expect(err).ToNot(HaveOccurred())

		nominal, err = runner.RunNominal()
		Expect(err).ToNot(HaveOccurred())
	})

	It("charges extra channel ISI against the vertical margin", func() {
		res, err := runner.Run(link.Perturbation{ISIExtraMV: 40})
		Expect(err).ToNot(HaveOccurred())

		Expect(res.Waterfall.FinalVerticalMV).To(
			BeNumerically("<", nominal.Waterfall.FinalVerticalMV))
	})

	It("charges the DFE summer offset against the vertical margin", func() {
		res, err := runner.Run(link.Perturbation{DFETapErrMV: 5})
		Expect(err).ToNot(HaveOccurred())

		Expect(res.Waterfall.FinalVerticalMV).To(BeNumerically("~",
			nominal.Waterfall.FinalVerticalMV-5, 1e-6))
	})

	It("widens the horizontal margin with a faster vote pipeline", func() {
		res, err := runner.Run(link.Perturbation{LatencyCycles: 6})
		Expect(err).ToNot(HaveOccurred())

		Expect(res.Waterfall.FinalHorizontalUI).To(
			BeNumerically(">", nominal.Waterfall.FinalHorizontalUI))
	})

	It("tracks more sinusoidal jitter with a wider loop", func() {
		res, err := runner.Run(link.Perturbation{BandwidthMHz: 40})
		Expect(err).ToNot(HaveOccurred())

		Expect(res.CDR.ResidualSJUI).To(
			BeNumerically("<", nominal.CDR.ResidualSJUI))
	})
})

var _ = Describe("Power budget", func() {
	It("flags a run exceeding its budget", func() {
		r, err := signoff.MakeBuilder().
			WithChannel(sixInchChannel()).
			WithPowerBudgetMW(10).
			Build()
		Expect(err).ToNot(HaveOccurred())

		res, err := r.RunNominal()
		Expect(err).ToNot(HaveOccurred())
		Expect(res.PowerWithinBudget).To(BeFalse())
	})

	It("treats a zero budget as unconstrained", func() {
		r, err := signoff.MakeBuilder().
			WithChannel(sixInchChannel()).
			Build()
		Expect(err).ToNot(HaveOccurred())

		res, err := r.RunNominal()
		Expect(err).ToNot(HaveOccurred())
		Expect(res.PowerWithinBudget).To(BeTrue())
	})
})
