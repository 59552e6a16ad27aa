// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"fmt"
	"slices"
	"sort"

	"github.com/gogpu/gpucache/driver"
	"github.com/gogpu/gpucache/internal/hashing"
	"github.com/gogpu/gpucache/metrics"
)

// Reflector produces the resource list of a shader module. The cache never
// parses shader bytecode itself.
type Reflector interface {
	Reflect(desc *driver.ShaderModuleDesc) ([]driver.ShaderResource, error)
}

// DescriptorReflector returns the Resources carried by the descriptor.
type DescriptorReflector struct{}

// Reflect implements Reflector.
func (DescriptorReflector) Reflect(desc *driver.ShaderModuleDesc) ([]driver.ShaderResource, error) {
	return desc.Resources, nil
}

// UpdateMode selects how a buffer resource's offset reaches the GPU.
type UpdateMode uint8

// Update modes.
const (
	// UpdateStatic writes the offset into the binding set.
	UpdateStatic UpdateMode = iota
	// UpdateDynamic passes the offset at bind time.
	UpdateDynamic
)

func (m UpdateMode) String() string {
	if m == UpdateDynamic {
		return "dynamic"
	}
	return "static"
}

// stage slots.
const (
	slotVertex = iota
	slotFragment
	slotCompute
	slotCount
)

func stageSlot(s driver.ShaderStage) (int, bool) {
	switch s {
	case driver.ShaderStageVertex:
		return slotVertex, true
	case driver.ShaderStageFragment:
		return slotFragment, true
	case driver.ShaderStageCompute:
		return slotCompute, true
	default:
		return 0, false
	}
}

// shaderModule is one cached module.
type shaderModule struct {
	hash      uint64
	desc      driver.ShaderModuleDesc
	id        driver.ShaderModuleID
	resources []driver.ShaderResource
}

func hashShaderDesc(d *driver.ShaderModuleDesc) uint64 {
	var w hashing.Writer
	w.Uint32(uint32(d.Stage))
	w.String(d.EntryPoint)
	w.String(d.WGSL)
	w.Words(d.SPIRV)
	w.Uint32(uint32(len(d.Resources))) //nolint:gosec // resource lists are short
	for _, r := range d.Resources {
		hashResource(&w, r)
	}
	return w.Sum64()
}

func hashResource(w *hashing.Writer, r driver.ShaderResource) {
	w.String(r.Name)
	w.Uint32(uint32(r.Type))
	w.Uint32(r.Set)
	w.Uint32(r.Binding)
	w.Uint32(uint32(r.Stages))
	w.Uint32(r.Size)
	w.Uint32(r.ArraySize)
	w.Uint32(r.Location)
	w.Uint32(uint32(r.Format))
}

func shaderDescEqual(a, b *driver.ShaderModuleDesc) bool {
	return a.Stage == b.Stage &&
		a.EntryPoint == b.EntryPoint &&
		a.WGSL == b.WGSL &&
		slices.Equal(a.SPIRV, b.SPIRV) &&
		slices.Equal(a.Resources, b.Resources)
}

// BindShader binds a shader module to its stage slot, compiling it on the
// first use of its content. Calling BindShader outside of shader binding
// starts a new shader binding for the frame.
func (c *Cache) BindShader(desc *driver.ShaderModuleDesc) error {
	slot, ok := stageSlot(desc.Stage)
	if !ok {
		return fmt.Errorf("pipeline: bind shader %q: stage %v is not a single stage: %w",
			desc.Label, desc.Stage, driver.ErrConfigurationConflict)
	}
	if c.state != StateShaderBinding {
		c.bound = [slotCount]*shaderModule{}
		c.state = StateShaderBinding
	}
	c.shadersFinished = false

	h := hashShaderDesc(desc)
	for _, m := range c.shaders {
		if m.hash == h && shaderDescEqual(&m.desc, desc) {
			c.bound[slot] = m
			c.stats.ShaderHits++
			c.rec.Hit(metrics.TierShader)
			return nil
		}
	}

	resources, err := c.reflector.Reflect(desc)
	if err != nil {
		return fmt.Errorf("pipeline: reflect shader %q: %w", desc.Label, err)
	}
	id, err := c.dev.CreateShaderModule(desc)
	if err != nil {
		c.log.Error("pipeline: shader module creation failed", "label", desc.Label, "err", err)
		return fmt.Errorf("pipeline: create shader %q: %w", desc.Label, err)
	}
	m := &shaderModule{
		hash:      h,
		desc:      cloneShaderDesc(desc),
		id:        id,
		resources: slices.Clone(resources),
	}
	c.shaders = append(c.shaders, m)
	c.bound[slot] = m
	c.stats.ShaderMisses++
	c.rec.Miss(metrics.TierShader)
	c.rec.Size(metrics.TierShader, len(c.shaders))
	c.log.Debug("pipeline: new shader module", "label", desc.Label, "stage", desc.Stage, "id", id)
	return nil
}

func cloneShaderDesc(d *driver.ShaderModuleDesc) driver.ShaderModuleDesc {
	out := *d
	out.SPIRV = slices.Clone(d.SPIRV)
	out.Resources = slices.Clone(d.Resources)
	return out
}

// FinishShaderBinding ends shader binding. When the set of bound modules
// differs from the previous frame's, the aggregate resource list is
// recomputed and every resource reverts to UpdateStatic.
func (c *Cache) FinishShaderBinding() error {
	if c.state != StateShaderBinding {
		return fmt.Errorf("pipeline: finish shader binding in state %v: %w", c.state, driver.ErrConfigurationConflict)
	}
	var ids [slotCount]driver.ShaderModuleID
	for i, m := range c.bound {
		if m != nil {
			ids[i] = m.id
		}
	}
	if ids != c.finishedModules || c.resources == nil {
		resources, err := aggregateResources(c.bound)
		if err != nil {
			return err
		}
		c.resources = resources
		c.updateModes = make(map[string]UpdateMode, len(resources))
		c.finishedModules = ids
	}
	c.shadersFinished = true
	return nil
}

// aggregateResources merges the descriptor and push-constant resources of
// the bound modules by name, OR-ing their stage masks.
func aggregateResources(bound [slotCount]*shaderModule) (map[string]driver.ShaderResource, error) {
	out := make(map[string]driver.ShaderResource)
	for _, m := range bound {
		if m == nil {
			continue
		}
		for _, r := range m.resources {
			if !r.Type.IsDescriptor() && r.Type != driver.ResourcePushConstant {
				continue
			}
			if r.Stages == 0 {
				r.Stages = m.desc.Stage
			}
			prev, ok := out[r.Name]
			if !ok {
				out[r.Name] = r
				continue
			}
			if prev.Type != r.Type || prev.Set != r.Set || prev.Binding != r.Binding {
				return nil, fmt.Errorf("pipeline: resource %q declared as %v@%d.%d and %v@%d.%d: %w",
					r.Name, prev.Type, prev.Set, prev.Binding, r.Type, r.Set, r.Binding,
					driver.ErrConfigurationConflict)
			}
			prev.Stages |= r.Stages
			if r.Size > prev.Size {
				prev.Size = r.Size
			}
			out[r.Name] = prev
		}
	}
	return out, nil
}

// sortedResources returns the aggregate resources ordered by set, binding
// and name.
func sortedResources(m map[string]driver.ShaderResource) []driver.ShaderResource {
	out := make([]driver.ShaderResource, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Set != b.Set {
			return a.Set < b.Set
		}
		if a.Binding != b.Binding {
			return a.Binding < b.Binding
		}
		return a.Name < b.Name
	})
	return out
}

// SetShaderResourceUpdateMode changes the update mode of a bound buffer
// resource. It must be called between FinishShaderBinding and
// BindPipelineLayout.
func (c *Cache) SetShaderResourceUpdateMode(name string, mode UpdateMode) error {
	if c.state != StateShaderBinding || !c.shadersFinished {
		return fmt.Errorf("pipeline: set update mode of %q in state %v: %w", name, c.state, driver.ErrConfigurationConflict)
	}
	r, ok := c.resources[name]
	if !ok {
		c.log.Warn("pipeline: unknown shader resource", "name", name)
		return fmt.Errorf("pipeline: unknown shader resource %q: %w", name, driver.ErrConfigurationConflict)
	}
	if mode == UpdateDynamic && !r.Type.IsBuffer() {
		return fmt.Errorf("pipeline: resource %q of type %v cannot be dynamic: %w", name, r.Type, driver.ErrConfigurationConflict)
	}
	if mode == UpdateStatic {
		delete(c.updateModes, name)
	} else {
		c.updateModes[name] = mode
	}
	return nil
}

// vertexInputs returns the stage inputs of the bound vertex module ordered
// by location.
func (c *Cache) vertexInputs() []driver.ShaderResource {
	vs := c.bound[slotVertex]
	if vs == nil {
		return nil
	}
	var in []driver.ShaderResource
	for _, r := range vs.resources {
		if r.Type == driver.ResourceStageInput {
			in = append(in, r)
		}
	}
	sort.Slice(in, func(i, j int) bool { return in[i].Location < in[j].Location })
	return in
}
