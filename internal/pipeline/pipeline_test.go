package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/loopshape/internal/config"
	"github.com/san-kum/loopshape/internal/interconnect"
	"github.com/san-kum/loopshape/internal/linalg"
	"github.com/san-kum/loopshape/internal/lti"
	"github.com/san-kum/loopshape/internal/pipeline"
	"github.com/san-kum/loopshape/internal/sim"
	"github.com/san-kum/loopshape/internal/synth"
)

var quiet = pipeline.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

var _ = Describe("Run", func() {
	Context("with the mixed sensitivity preset", func() {
		var report *pipeline.Report

		BeforeEach(func() {
			var err error
			report, err = pipeline.Run(context.Background(), config.GetPreset("mixed_sensitivity"), quiet)
			Expect(err).NotTo(HaveOccurred())
		})

		It("keeps gamma strictly inside the bracket", func() {
			Expect(report.Result.Gamma).To(BeNumerically(">", 0.1))
			Expect(report.Result.Gamma).To(BeNumerically("<", 8.0))
		})

		It("matches the final gamma to the max singular value", func() {
			rel := math.Abs(report.Peak.Value-report.Result.Gamma) / report.Result.Gamma
			Expect(rel).To(BeNumerically("<=", 1e-2))
		})

		It("returns a stabilizing controller", func() {
			tol := 1e-9 * math.Max(1, linalg.MaxAbs(report.Result.ClosedLoop.A()))
			for _, p := range lti.Poles(report.Result.ClosedLoop) {
				Expect(real(p)).To(BeNumerically("<", tol))
			}
		})

		It("simulates the closed-loop step response", func() {
			res, err := pipeline.Simulate(context.Background(), report, 0, sim.Config{Dt: 0.01, Duration: 5})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Times).To(HaveLen(501))
			Expect(res.Outputs[0]).To(HaveLen(report.Result.ClosedLoop.Outputs()))
			// Wt P u is strictly proper, so it starts at zero
			Expect(res.Outputs[0][0]).To(BeNumerically("~", 0, 1e-12))
			for _, y := range res.Outputs {
				for _, v := range y {
					Expect(math.IsNaN(v) || math.IsInf(v, 0)).To(BeFalse())
				}
			}
			for _, key := range []string{"peak_abs[0]", "peak_abs[1]"} {
				Expect(res.Metrics).To(HaveKey(key))
				Expect(math.IsInf(res.Metrics[key], 0) || math.IsNaN(res.Metrics[key])).To(BeFalse())
			}

			_, err = pipeline.Simulate(context.Background(), report, 5, sim.Config{Dt: 0.01, Duration: 5})
			var se *pipeline.StageError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Stage).To(Equal(pipeline.StageSimulate))
		})

		It("tracks the reference when the error is kept as an output", func() {
			s := config.GetPreset("mixed_sensitivity")
			s.Outputs = "[wt; wu; yref - plant; yref - plant]"
			plant, err := pipeline.BuildPlant(s)
			Expect(err).NotTo(HaveOccurred())
			cl, err := lti.LowerLFT(plant, report.Result.Controller, s.Measurements, s.Controls)
			Expect(err).NotTo(HaveOccurred())
			Expect(cl.Outputs()).To(Equal(3))

			tracking := *report
			tracking.Result.ClosedLoop = cl
			res, err := pipeline.Simulate(context.Background(), &tracking, 0, sim.Config{Dt: 0.01, Duration: 5})
			Expect(err).NotTo(HaveOccurred())
			// the tracking error starts at the full reference step
			Expect(res.Outputs[0][2]).To(BeNumerically("~", 1, 1e-9))
			Expect(res.Metrics["peak_abs[2]"]).To(BeNumerically(">=", 1-1e-9))
		})

		It("reports singular values on every grid point", func() {
			Expect(report.SingularValues).To(HaveLen(report.Scenario.Grid.Points))
			Expect(report.Response.Len()).To(Equal(report.Scenario.Grid.Points))
			Expect(report.Plant.Inputs()).To(Equal(2))
			Expect(report.Plant.Outputs()).To(Equal(3))
		})
	})

	It("wraps wiring failures with the interconnect stage", func() {
		s := config.GetPreset("mixed_sensitivity")
		s.Systems[1].Input = "[ghost]"
		_, err := pipeline.Run(context.Background(), s, quiet)

		var se *pipeline.StageError
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.Stage).To(Equal(pipeline.StageInterconnect))
		Expect(errors.Is(err, interconnect.ErrUnknownSignal)).To(BeTrue())
	})

	It("wraps an infeasible bracket with the synthesize stage", func() {
		s := config.GetPreset("mixed_sensitivity")
		s.Bracket.High = 0.3
		_, err := pipeline.Run(context.Background(), s, quiet)

		Expect(err).To(MatchError(synth.ErrSynthesisInfeasible))
		Expect(err.Error()).To(HavePrefix("synthesize: "))
	})

	It("rejects invalid scenarios before building anything", func() {
		s := config.GetPreset("mixed_sensitivity")
		s.Grid.Points = 1
		_, err := pipeline.Run(context.Background(), s, quiet)
		Expect(err).To(MatchError(config.ErrInvalidScenario))
	})

	It("rejects unknown engines", func() {
		s := config.GetPreset("mixed_sensitivity")
		s.Engine = "lmi"
		_, err := pipeline.Run(context.Background(), s, quiet)
		Expect(err).To(MatchError(ContainSubstring("unknown synthesis engine: lmi")))
	})
})

var _ = Describe("RunDK", func() {
	It("records an immutable history and keeps the best iteration", func() {
		report, err := pipeline.RunDK(context.Background(), config.GetPreset("robust_performance"), quiet)
		Expect(err).NotTo(HaveOccurred())

		Expect(report.History).NotTo(BeEmpty())
		Expect(report.State.Terminal()).To(BeTrue())
		for i, it := range report.History {
			Expect(it.Index).To(Equal(i))
			Expect(it.Scalings).To(HaveLen(2))
			Expect(report.Best.MuPeak).To(BeNumerically("<=", it.MuPeak))
			for k := range it.Bounds.Omega {
				Expect(it.Bounds.Lower[k]).To(BeNumerically("<=", it.Bounds.Upper[k]+1e-12))
			}
		}
		Expect(report.History[0].Scalings[0].States()).To(BeZero())
	})

	It("requires an uncertainty structure", func() {
		_, err := pipeline.RunDK(context.Background(), config.GetPreset("mixed_sensitivity"), quiet)
		Expect(err).To(MatchError(config.ErrInvalidScenario))
	})

	It("stops on a canceled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := pipeline.RunDK(ctx, config.GetPreset("robust_performance"), quiet)
		Expect(err).To(MatchError(context.Canceled))
	})
})

var _ = Describe("Registry", func() {
	It("lists the built-in engines", func() {
		r := pipeline.NewRegistry()
		Expect(r.ListSynths()).To(Equal([]string{"riccati"}))
		Expect(r.ListMus()).To(Equal([]string{"dscaled"}))
		_, err := r.GetMu("ssv")
		Expect(err).To(HaveOccurred())
	})

	It("accepts custom engines", func() {
		r := pipeline.NewRegistry()
		r.RegisterSynth("fixed", func(*slog.Logger) synth.Engine { return fixedEngine{} })
		s := config.GetPreset("mixed_sensitivity")
		s.Engine = "fixed"
		_, err := pipeline.Run(context.Background(), s, pipeline.Options{Registry: r, Logger: quiet.Logger})
		Expect(err).To(MatchError(ContainSubstring("fixed engine")))
	})
})

type fixedEngine struct{}

func (fixedEngine) Synthesize(ctx context.Context, plant lti.StateSpace, nMeas, nCtrl int, br synth.Bracket) (synth.Result, error) {
	return synth.Result{}, errors.New("fixed engine has no controller")
}
