// Command gpucachedemo renders a scripted sequence of frames through the
// gpucache tiers and reports what each tier created, reused and reclaimed.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/gpucache"
	"github.com/gogpu/gpucache/driver"
	"github.com/gogpu/gpucache/driver/drivertest"
	"github.com/gogpu/gpucache/driver/haldriver"
	"github.com/gogpu/gpucache/fbo"
	"github.com/gogpu/gpucache/metrics/prom"
)

func main() {
	var (
		frames   = flag.Int("frames", 10, "number of frames to render")
		window   = flag.Uint("frames-in-flight", gpucache.DefaultFramesInFlight, "disuse window in frames")
		resizeAt = flag.Int("resize-at", 5, "frame at which the swapchain image is replaced (0 disables)")
		fake     = flag.Bool("fake", false, "use the recording fake device instead of the noop HAL backend")
		addr     = flag.String("metrics", "", "serve Prometheus metrics on this address, e.g. :9090")
		verbose  = flag.Bool("v", false, "log cache activity")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	reg := prometheus.NewRegistry()
	opts := []gpucache.Option{
		gpucache.WithFramesInFlight(uint32(*window)),
		gpucache.WithLogger(logger),
		gpucache.WithMetrics(prom.New(reg, "gpucache", "demo", nil)),
	}

	var (
		dev     driver.Device
		fakeDev *drivertest.Device
		halDev  *haldriver.Device
	)
	if *fake {
		fakeDev = drivertest.New()
		dev = fakeDev
	} else {
		halDev = haldriver.New(&noop.Device{}, haldriver.WithLogger(logger))
		dev = halDev
	}

	c, err := gpucache.New(dev, opts...)
	if err != nil {
		log.Fatalf("Failed to create cache: %v", err)
	}
	defer c.Shutdown()

	r, err := newRenderer(c, dev, halDev)
	if err != nil {
		log.Fatalf("Failed to set up renderer: %v", err)
	}
	for i := 1; i <= *frames; i++ {
		if i == *resizeAt {
			if err := r.resize(); err != nil {
				log.Fatalf("Frame %d: resize: %v", i, err)
			}
		}
		if err := r.frame(uint64(i)); err != nil {
			log.Fatalf("Frame %d: %v", i, err)
		}
	}

	report(c.Stats(), *frames)
	if fakeDev != nil {
		log.Printf("device: %s", fakeDev.Summary())
	}

	if *addr != "" {
		serveMetrics(*addr, reg)
	}
}

// report prints per-tier statistics with grouped digits.
func report(s gpucache.Stats, frames int) {
	p := message.NewPrinter(language.English)
	p.Printf("epoch %d after %d frames\n", s.Epoch, frames)
	p.Printf("pipelines:     %d live, %d hits, %d misses, %d evicted\n",
		s.Pipeline.Pipelines.Entries, s.Pipeline.Pipelines.Hits, s.Pipeline.Pipelines.Misses, s.Pipeline.Pipelines.Evictions)
	p.Printf("binding sets:  %d live, %d hits, %d misses, %d pools\n",
		s.Pipeline.BindingSets.Entries, s.Pipeline.BindingSets.Hits, s.Pipeline.BindingSets.Misses, s.Pipeline.Pools)
	p.Printf("layouts:       %d live, %d shader modules\n", s.Pipeline.Layouts.Entries, s.Pipeline.ShaderModules)
	p.Printf("render passes: %d live, %d hits\n", s.FBO.RenderPasses, s.FBO.RenderPassHits)
	p.Printf("framebuffers:  %d live, %d hits\n", s.FBO.Framebuffers, s.FBO.FramebufferHits)
	p.Printf("staging:       %d free, %d in use, %d hits\n", s.Stage.FreeBuffers, s.Stage.InUseBuffers, s.Stage.BufferHits)
	p.Printf("reclaim:       %d pending\n", s.PendingReclaim)
}

// serveMetrics serves reg on addr until interrupted.
func serveMetrics(addr string, reg *prometheus.Registry) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	srv := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	log.Printf("serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("metrics server: %v", err)
	}
}

// renderer draws a textured quad into a swapchain image each frame.
type renderer struct {
	c      *gpucache.Cache
	dev    driver.Device
	halDev *haldriver.Device

	target driver.TextureID
	ubo    driver.BufferID
	vs, fs driver.ShaderModuleDesc
	width  uint32
	height uint32
}

func newRenderer(c *gpucache.Cache, dev driver.Device, halDev *haldriver.Device) (*renderer, error) {
	r := &renderer{c: c, dev: dev, halDev: halDev, width: 800, height: 600}
	r.vs = driver.ShaderModuleDesc{
		Label:      "quad.vs",
		Stage:      driver.ShaderStageVertex,
		EntryPoint: "vs_main",
		WGSL:       quadWGSL,
		Resources: []driver.ShaderResource{
			{Name: "position", Type: driver.ResourceStageInput, Location: 0, Format: gputypes.VertexFormatFloat32x2},
			{Name: "uv", Type: driver.ResourceStageInput, Location: 1, Format: gputypes.VertexFormatFloat32x2},
			{Name: "globals", Type: driver.ResourceUniformBuffer, Set: 0, Binding: 0, Size: 64},
		},
	}
	r.fs = driver.ShaderModuleDesc{
		Label:      "quad.fs",
		Stage:      driver.ShaderStageFragment,
		EntryPoint: "fs_main",
		WGSL:       quadWGSL,
		Resources: []driver.ShaderResource{
			{Name: "globals", Type: driver.ResourceUniformBuffer, Set: 0, Binding: 0, Size: 64},
		},
	}

	var err error
	if r.ubo, err = dev.CreateBuffer(&driver.BufferDesc{Label: "globals", Size: 64, Usage: gputypes.BufferUsageUniform}); err != nil {
		return nil, err
	}
	if r.target, err = r.newTarget(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *renderer) newTarget() (driver.TextureID, error) {
	return r.dev.CreateTexture(&driver.TextureDesc{
		Label:  "swapchain",
		Width:  r.width,
		Height: r.height,
		Format: gputypes.TextureFormatBGRA8Unorm,
		Usage:  gputypes.TextureUsageRenderAttachment,
	})
}

// resize replaces the swapchain image; the old one and its framebuffers are
// reclaimed once the frames using them retire.
func (r *renderer) resize() error {
	if err := r.c.ReleaseTexture(r.target); err != nil {
		return err
	}
	r.width, r.height = r.width*5/4, r.height*5/4
	var err error
	r.target, err = r.newTarget()
	return err
}

func (r *renderer) frame(n uint64) error {
	var pk fbo.RenderPassKey
	pk.ColorFormats[0] = gputypes.TextureFormatBGRA8Unorm
	pk.Clear = fbo.TargetColor0
	pass, err := r.c.FBOs().GetRenderPass(pk)
	if err != nil {
		return err
	}
	fk := fbo.FramebufferKey{RenderPass: pass, Width: r.width, Height: r.height}
	fk.Color[0] = r.target
	fb, err := r.c.FBOs().GetFramebuffer(fk)
	if err != nil {
		return err
	}

	var cmd driver.CommandBuffer
	var end func()
	if r.halDev != nil {
		hc, err := r.halDev.BeginRenderPass(&noop.CommandEncoder{}, n, fb, 0, []gputypes.Color{{A: 1}})
		if err != nil {
			return err
		}
		cmd, end = hc, hc.End
	} else {
		cmd, end = drivertest.NewCommandBuffer(n), func() {}
	}
	defer end()
	if err := r.c.Observe(cmd); err != nil {
		return err
	}

	staging, err := r.c.Stages().AcquireBuffer(64)
	if err != nil {
		return err
	}
	defer staging.Release()

	p := r.c.Pipelines()
	vs, fs := r.vs, r.fs
	if err := p.BindShader(&vs); err != nil {
		return err
	}
	if err := p.BindShader(&fs); err != nil {
		return err
	}
	if err := p.FinishShaderBinding(); err != nil {
		return err
	}
	if err := p.BindPipelineLayout(); err != nil {
		return err
	}
	p.BindRasterState(driver.RasterState{
		Topology: gputypes.PrimitiveTopologyTriangleList,
		Blend: &driver.BlendState{
			Color: driver.BlendComponent{
				SrcFactor: gputypes.BlendFactorOne,
				DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: driver.BlendComponent{
				SrcFactor: gputypes.BlendFactorOne,
				DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
				Operation: gputypes.BlendOperationAdd,
			},
		},
	})
	p.BindRenderPass(pass, 0)
	if err := p.BindBuffer("globals", r.ubo, 0, 64, 0); err != nil {
		return err
	}
	if err := p.ResolveBindingSets(cmd); err != nil {
		return err
	}
	return p.BindPipeline(cmd)
}

const quadWGSL = `
struct Globals {
    transform: mat4x4<f32>,
}

@group(0) @binding(0) var<uniform> globals: Globals;

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(@location(0) position: vec2<f32>, @location(1) uv: vec2<f32>) -> VertexOutput {
    var out: VertexOutput;
    out.position = globals.transform * vec4<f32>(position, 0.0, 1.0);
    out.uv = uv;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return vec4<f32>(in.uv, 0.0, 1.0);
}
`
