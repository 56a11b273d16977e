package roadgraph

import "github.com/paulmach/orb"

// sampleOSM is a small Helsinki neighbourhood:
//
//	4 ---- 3       6 -- 7   (cycleway, separate component)
//	|      ^
//	1 ---- 2
//
// 1-2 residential, 2->3 oneway primary, 3-4 footway, 1-4 motorway,
// 4-5 leaves the bbox and 16 is a building outline.
const sampleOSM = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
 <node id="1" lat="60.170" lon="24.940"/>
 <node id="2" lat="60.170" lon="24.942"/>
 <node id="3" lat="60.172" lon="24.942"/>
 <node id="4" lat="60.172" lon="24.940"/>
 <node id="5" lat="60.300" lon="25.300"/>
 <node id="6" lat="60.171" lon="24.945"/>
 <node id="7" lat="60.171" lon="24.946"/>
 <way id="10"><nd ref="1"/><nd ref="2"/><tag k="highway" v="residential"/></way>
 <way id="11"><nd ref="2"/><nd ref="3"/><tag k="highway" v="primary"/><tag k="oneway" v="yes"/></way>
 <way id="12"><nd ref="3"/><nd ref="4"/><tag k="highway" v="footway"/></way>
 <way id="13"><nd ref="4"/><nd ref="5"/><tag k="highway" v="residential"/></way>
 <way id="14"><nd ref="6"/><nd ref="7"/><tag k="highway" v="cycleway"/></way>
 <way id="15"><nd ref="1"/><nd ref="4"/><tag k="highway" v="motorway"/></way>
 <way id="16"><nd ref="1"/><nd ref="4"/><tag k="building" v="yes"/></way>
</osm>`

var sampleBound = orb.Bound{Min: orb.Point{24.93, 60.16}, Max: orb.Point{24.95, 60.18}}
