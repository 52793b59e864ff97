package alsa

// reset opens every mask and interval so the driver may choose freely.
func (p *sndPcmHwParams) reset() {
	*p = sndPcmHwParams{}

	for n := range p.Masks {
		for i := range p.Masks[n].Bits {
			p.Masks[n].Bits[i] = ^uint32(0)
		}
	}

	for n := range p.Intervals {
		p.Intervals[n].MaxVal = ^uint32(0)
	}

	p.Rmask = ^uint32(0)
	p.Info = ^uint32(0)
}

// setMask narrows a mask parameter to a single value.
func (p *sndPcmHwParams) setMask(param PcmParam, bit uint32) {
	if param < SNDRV_PCM_HW_PARAM_ACCESS || param > SNDRV_PCM_HW_PARAM_SUBFORMAT || bit >= 256 {
		return
	}

	mask := &p.Masks[param]
	mask.Bits = [8]uint32{}
	mask.Bits[bit/32] = 1 << (bit % 32)
}

func (p *sndPcmHwParams) interval(param PcmParam) *sndInterval {
	if param < SNDRV_PCM_HW_PARAM_SAMPLE_BITS || param > SNDRV_PCM_HW_PARAM_TICK_TIME {
		return nil
	}

	return &p.Intervals[param-SNDRV_PCM_HW_PARAM_SAMPLE_BITS]
}

// setInt pins an interval parameter to val.
func (p *sndPcmHwParams) setInt(param PcmParam, val uint32) {
	if i := p.interval(param); i != nil {
		i.MinVal, i.MaxVal = val, val
		i.Flags = SNDRV_PCM_INTERVAL_INTEGER
	}
}

func (p *sndPcmHwParams) setMin(param PcmParam, val uint32) {
	if i := p.interval(param); i != nil {
		i.MinVal = val
	}
}

// get returns the lower bound of an interval; after HW_PARAMS it is the chosen value.
func (p *sndPcmHwParams) get(param PcmParam) uint32 {
	if i := p.interval(param); i != nil {
		return i.MinVal
	}

	return 0
}
