package rod

// audioBinding is the page function the capture script calls with PCM data.
const audioBinding = "__copilotAudio"

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// captureHookJS records every remote audio track the meeting receives. It
// must be installed before navigation so the first peer connection is seen.
const captureHookJS = `
(() => {
	if (window.__copilotCapture) return;
	const cap = window.__copilotCapture = { tracks: [], ctx: null, mixer: null };

	cap.attach = (track) => {
		if (!cap.ctx || track.readyState === 'ended') return;
		const src = cap.ctx.createMediaStreamSource(new MediaStream([track]));
		src.connect(cap.mixer);
	};

	const Native = window.RTCPeerConnection;
	if (!Native) return;
	window.RTCPeerConnection = function (...args) {
		const pc = new Native(...args);
		pc.addEventListener('track', (e) => {
			if (e.track.kind !== 'audio') return;
			cap.tracks.push(e.track);
			cap.attach(e.track);
		});
		return pc;
	};
	window.RTCPeerConnection.prototype = Native.prototype;
})();
`

// startCaptureJS mixes the recorded tracks down to mono PCM16 LE at the
// requested sample rate and hands base64 chunks to the binding.
const startCaptureJS = `(sampleRate, binding) => {
	const cap = window.__copilotCapture;
	if (!cap) throw new Error('capture hook not installed');
	if (cap.ctx) return cap.tracks.length;

	cap.ctx = new AudioContext({ sampleRate });
	cap.mixer = cap.ctx.createGain();
	const proc = cap.ctx.createScriptProcessor(4096, 1, 1);
	cap.mixer.connect(proc);
	proc.connect(cap.ctx.destination);

	proc.onaudioprocess = (e) => {
		const input = e.inputBuffer.getChannelData(0);
		const pcm = new Int16Array(input.length);
		for (let i = 0; i < input.length; i++) {
			const s = Math.max(-1, Math.min(1, input[i]));
			pcm[i] = s < 0 ? s * 0x8000 : s * 0x7fff;
		}
		const bytes = new Uint8Array(pcm.buffer);
		let bin = '';
		for (let i = 0; i < bytes.length; i += 0x8000) {
			bin += String.fromCharCode.apply(null, bytes.subarray(i, i + 0x8000));
		}
		window[binding]({ data: btoa(bin) });
	};

	cap.tracks.forEach(cap.attach);
	cap.ctx.resume();
	return cap.tracks.length;
}`

// admissionStateJS reports "admitted", "rejected" or "waiting".
const admissionStateJS = `(admittedSelector) => {
	if (document.querySelector(admittedSelector)) return 'admitted';
	const text = document.body ? document.body.innerText : '';
	const rejected = [
		"You can't join this call",
		'Someone in the call denied your request',
		'denied your request to join',
		'You have been removed',
	];
	return rejected.some((r) => text.includes(r)) ? 'rejected' : 'waiting';
}`

// meetingExitedJS reports whether the meeting is over for the bot.
const meetingExitedJS = `() => {
	const text = document.body ? document.body.innerText : '';
	return [
		'You left the meeting',
		'You have been removed',
		'Someone removed you',
		'The meeting has ended',
		'Meeting ended',
		'Call ended',
		'Return to home screen',
	].some((s) => text.includes(s));
}`
