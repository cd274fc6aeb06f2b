package main

// resolve answers a single parsed query against the store and cache, and
// is the one code path both the UDP loop and the DNS-over-HTTPS handler
// call, so the two transports can never drift in behavior. The class
// check runs first, then the zone lookup, then the name/record lookup,
// matching the parse -> rate check -> class check -> lookup pipeline the
// transports build around this.
func (s *server) resolve(q *queryContext, clientIP string) (answers, authority []answerRR, rcode int) {
	if q.Qclass != ClassINET {
		return nil, nil, RcodeNotImp
	}

	zone, ok, err := s.store.resolveZone(q.QName)
	if err != nil {
		return nil, nil, RcodeServFail
	}
	if !ok {
		return nil, nil, RcodeNXDomain
	}

	rows, cached := s.cache.get(q.QName)
	if !cached {
		rows, err = s.store.candidates(q.QName)
		if err != nil {
			return nil, nil, RcodeServFail
		}
		s.cache.set(q.QName, rows)
	}

	selected := selectAnswers(rows, q.Qtype, clientIP, s.rng)
	if len(selected) > 0 {
		return toAnswerRRs(selected), nil, RcodeNoError
	}

	// Once the zone resolves, a no-answer case is always NOERROR with
	// the zone's SOA in authority, never NXDOMAIN, whether or not any
	// row exists at all for this name.
	authorityRows, err := s.store.authority(zone)
	if err != nil {
		return nil, nil, RcodeServFail
	}
	soa := toAnswerRRs(filterByType(authorityRows, "SOA"))
	return nil, soa, RcodeNoError
}

func toAnswerRRs(rows []RecordModel) []answerRR {
	out := make([]answerRR, 0, len(rows))
	for _, r := range rows {
		code, ok := rrTypeCode(r.Type)
		if !ok {
			continue
		}
		out = append(out, answerRR{
			Name:  r.FQDN,
			Type:  code,
			TTL:   r.TTL,
			Value: r.Value,
		})
	}
	return out
}
